package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/afero"

	"github.com/coliman/portal-cfdi-api/internal/application/auth"
	"github.com/coliman/portal-cfdi-api/internal/application/cfdis"
	"github.com/coliman/portal-cfdi-api/internal/application/ingest"
	"github.com/coliman/portal-cfdi-api/internal/application/validation"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/archive"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/postgres"
	infrasat "github.com/coliman/portal-cfdi-api/internal/infrastructure/sat"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/storage"
	httpRouter "github.com/coliman/portal-cfdi-api/internal/interfaces/http"
	"github.com/coliman/portal-cfdi-api/pkg/config"
	"github.com/coliman/portal-cfdi-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	userRepo := postgres.NewUserRepository(pool)
	clientRepo := postgres.NewClientRepository(pool)
	cfdiRepo := postgres.NewCfdiRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	store := storage.NewStore(afero.NewOsFs(), cfg.Storage.BasePath)
	extractor := archive.NewExtractor(log.Zerolog())
	satClient := infrasat.NewConsultaClient(cfg.SAT.ConsultaURL, cfg.SAT.Timeout)

	ingestUC := ingest.NewUseCase(cfdiRepo, txRunner, store, extractor,
		log.Zerolog(), cfg.Storage.ReportOrphanPDF)
	cfdisUC := cfdis.NewUseCase(cfdiRepo)
	reconciler := validation.NewReconciler(cfdiRepo, satClient, log.Zerolog())
	authUC := auth.NewAuthUseCase(userRepo, clientRepo, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
		BodyLimit:    64 * 1024 * 1024, // lotes de comprimidos con XML+PDF
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Portal CFDI API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		AuthUC:     authUC,
		IngestUC:   ingestUC,
		CfdisUC:    cfdisUC,
		Reconciler: reconciler,
		JWTSecret:  cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
