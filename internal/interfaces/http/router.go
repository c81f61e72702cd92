package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coliman/portal-cfdi-api/internal/application/auth"
	"github.com/coliman/portal-cfdi-api/internal/application/cfdis"
	"github.com/coliman/portal-cfdi-api/internal/application/ingest"
	"github.com/coliman/portal-cfdi-api/internal/application/validation"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AuthUC     *auth.AuthUseCase
	IngestUC   *ingest.UseCase
	CfdisUC    *cfdis.UseCase
	Reconciler *validation.Reconciler
	JWTSecret  string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Auth (público)
	authGroup := api.Group("/auth")
	authHandler := NewAuthHandler(deps.AuthUC)
	authGroup.Post("/login", authHandler.Login)

	// Rutas protegidas (requieren Bearer Token; el client_id sale del token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	cfdisGroup := protected.Group("/cfdis")
	cfdiHandler := NewCfdiHandler(deps.IngestUC, deps.CfdisUC, deps.Reconciler)
	cfdisGroup.Post("/upload", cfdiHandler.Upload)
	cfdisGroup.Post("/import-folder", cfdiHandler.ImportFolder)
	cfdisGroup.Post("/validate", cfdiHandler.Validate)
	cfdisGroup.Get("/", cfdiHandler.List)
	cfdisGroup.Get("/:id", cfdiHandler.GetByID)
	// La reasignación manual de estatus queda reservada a administradores.
	cfdisGroup.Patch("/:id/estatus", RequireRole("admin"), cfdiHandler.UpdateEstatus)
}
