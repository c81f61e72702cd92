// Package validation reconcilia el estatus de los comprobantes contra el
// servicio ConsultaCFDI del SAT.
package validation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/coliman/portal-cfdi-api/internal/application/dto"
	"github.com/coliman/portal-cfdi-api/internal/domain"
	"github.com/coliman/portal-cfdi-api/internal/domain/entity"
	"github.com/coliman/portal-cfdi-api/internal/domain/repository"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/sat"
)

// ConsultaPort puerto de salida hacia el WS del SAT. Para tests se inyecta un stub.
type ConsultaPort interface {
	Consulta(ctx context.Context, req sat.ConsultaRequest) (*sat.ConsultaResult, error)
}

// Reconciler consulta el SAT y persiste el veredicto en el comprobante.
type Reconciler struct {
	cfdiRepo repository.CfdiRepository
	consulta ConsultaPort
	log      zerolog.Logger
	now      func() time.Time
}

// NewReconciler construye el reconciliador.
func NewReconciler(cfdiRepo repository.CfdiRepository, consulta ConsultaPort, log zerolog.Logger) *Reconciler {
	return &Reconciler{cfdiRepo: cfdiRepo, consulta: consulta, log: log, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// ValidateCfdi consulta el estatus del comprobante ante el SAT y lo persiste.
// Un fallo de transporte devuelve ErrSATUnavailable sin tocar la fila: el
// estatus solo cambia con un veredicto definitivo del SAT.
func (r *Reconciler) ValidateCfdi(ctx context.Context, clientID string, req dto.ValidateCfdiRequest) (*dto.ValidateCfdiResponse, error) {
	c, err := r.cfdiRepo.GetByUUID(clientID, req.UUID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}

	result, err := r.consulta.Consulta(ctx, sat.ConsultaRequest{
		EmisorRFC:   c.EmisorRFC,
		ReceptorRFC: c.ReceptorRFC,
		Total:       c.Total,
		UUID:        c.UUID,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("uuid", c.UUID).Msg("consulta SAT no disponible")
		return nil, err
	}

	estatus := mapEstado(result.Estado)
	respuesta, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	consultadoEn := r.now()
	if err := r.cfdiRepo.UpdateValidacion(clientID, c.UUID, estatus, string(respuesta), consultadoEn); err != nil {
		return nil, err
	}

	r.log.Info().Str("uuid", c.UUID).Str("estado_sat", result.Estado).
		Str("estatus", estatus).Msg("comprobante reconciliado con SAT")
	return &dto.ValidateCfdiResponse{
		UUID:          c.UUID,
		Estatus:       estatus,
		Estado:        result.Estado,
		CodigoEstatus: result.CodigoEstatus,
		ConsultadoEn:  consultadoEn,
	}, nil
}

// mapEstado traduce el Estado del SAT al estatus interno. "No Encontrado" (el
// SAT publica con hasta 72 h de retraso) y cualquier valor desconocido quedan
// en pendiente; solo Vigente y Cancelado son veredictos definitivos.
func mapEstado(estado string) string {
	switch estado {
	case "Vigente":
		return entity.ValidacionValido
	case "Cancelado":
		return entity.ValidacionRechazado
	default:
		return entity.ValidacionPendiente
	}
}
