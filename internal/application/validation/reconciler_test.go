package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coliman/portal-cfdi-api/internal/application/dto"
	"github.com/coliman/portal-cfdi-api/internal/domain"
	"github.com/coliman/portal-cfdi-api/internal/domain/entity"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/sat"
)

const testUUID = "AAAA1111-BB22-CC33-DD44-EEEEFFFF0000"

type stubConsulta struct {
	result *sat.ConsultaResult
	err    error
	gotReq sat.ConsultaRequest
}

func (s *stubConsulta) Consulta(_ context.Context, req sat.ConsultaRequest) (*sat.ConsultaResult, error) {
	s.gotReq = req
	return s.result, s.err
}

// repoStub implementación mínima en memoria para el reconciliador.
type repoStub struct {
	cfdi        *entity.Cfdi
	updated     bool
	gotEstatus  string
	gotResp     string
	gotFecha    time.Time
	updateError error
}

func (r *repoStub) Create(*entity.Cfdi) error                  { return nil }
func (r *repoStub) CreateConcepto(*entity.CfdiConcepto) error { return nil }
func (r *repoStub) ExistsByUUID(string, string) (bool, error) { return false, nil }
func (r *repoStub) GetByID(string, string) (*entity.Cfdi, error) {
	return r.cfdi, nil
}
func (r *repoStub) GetByUUID(_, fiscalUUID string) (*entity.Cfdi, error) {
	if r.cfdi != nil && r.cfdi.UUID == fiscalUUID {
		return r.cfdi, nil
	}
	return nil, nil
}
func (r *repoStub) GetConceptosByCfdiID(string) ([]*entity.CfdiConcepto, error) { return nil, nil }
func (r *repoStub) List(string, int, int) ([]*entity.Cfdi, error)               { return nil, nil }
func (r *repoStub) Count(string) (int, error)                                   { return 0, nil }
func (r *repoStub) UpdateValidacion(_, _, estatus, respuesta string, fecha time.Time) error {
	if r.updateError != nil {
		return r.updateError
	}
	r.updated = true
	r.gotEstatus = estatus
	r.gotResp = respuesta
	r.gotFecha = fecha
	return nil
}
func (r *repoStub) UpdateEstatusManual(string, string, string) error { return nil }

func testCfdi() *entity.Cfdi {
	return &entity.Cfdi{
		ID:          "id-1",
		ClientID:    "cliente-1",
		UUID:        testUUID,
		EmisorRFC:   "AAA010101AAA",
		ReceptorRFC: "BBB020202BB2",
		Total:       decimal.RequireFromString("1160.00"),
	}
}

func newReconciler(repo *repoStub, consulta ConsultaPort) *Reconciler {
	return NewReconciler(repo, consulta, zerolog.Nop()).WithClock(func() time.Time {
		return time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)
	})
}

func TestValidateCfdi_Vigente(t *testing.T) {
	repo := &repoStub{cfdi: testCfdi()}
	consulta := &stubConsulta{result: &sat.ConsultaResult{
		Estado:        "Vigente",
		CodigoEstatus: "S - Comprobante obtenido satisfactoriamente.",
	}}
	r := newReconciler(repo, consulta)

	resp, err := r.ValidateCfdi(context.Background(), "cliente-1", dto.ValidateCfdiRequest{UUID: testUUID})
	require.NoError(t, err)

	assert.Equal(t, entity.ValidacionValido, resp.Estatus)
	assert.Equal(t, "Vigente", resp.Estado)
	assert.True(t, repo.updated)
	assert.Equal(t, entity.ValidacionValido, repo.gotEstatus)
	assert.Contains(t, repo.gotResp, `"estado":"Vigente"`)
	assert.Equal(t, time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC), repo.gotFecha)

	// La expresión impresa sale de los datos persistidos del comprobante.
	assert.Equal(t, "AAA010101AAA", consulta.gotReq.EmisorRFC)
	assert.Equal(t, testUUID, consulta.gotReq.UUID)
}

func TestValidateCfdi_Cancelado(t *testing.T) {
	repo := &repoStub{cfdi: testCfdi()}
	r := newReconciler(repo, &stubConsulta{result: &sat.ConsultaResult{Estado: "Cancelado"}})

	resp, err := r.ValidateCfdi(context.Background(), "cliente-1", dto.ValidateCfdiRequest{UUID: testUUID})
	require.NoError(t, err)
	assert.Equal(t, entity.ValidacionRechazado, resp.Estatus)
}

func TestValidateCfdi_NoEncontradoQuedaPendiente(t *testing.T) {
	// El SAT publica con hasta 72 h de retraso: no encontrado no es rechazo.
	repo := &repoStub{cfdi: testCfdi()}
	r := newReconciler(repo, &stubConsulta{result: &sat.ConsultaResult{
		Estado:        "No Encontrado",
		CodigoEstatus: "N - 602: Comprobante no encontrado",
	}})

	resp, err := r.ValidateCfdi(context.Background(), "cliente-1", dto.ValidateCfdiRequest{UUID: testUUID})
	require.NoError(t, err)
	assert.Equal(t, entity.ValidacionPendiente, resp.Estatus)
	assert.True(t, repo.updated)
}

func TestValidateCfdi_EstadoVacioQuedaPendiente(t *testing.T) {
	repo := &repoStub{cfdi: testCfdi()}
	r := newReconciler(repo, &stubConsulta{result: &sat.ConsultaResult{}})

	resp, err := r.ValidateCfdi(context.Background(), "cliente-1", dto.ValidateCfdiRequest{UUID: testUUID})
	require.NoError(t, err)
	assert.Equal(t, entity.ValidacionPendiente, resp.Estatus)
}

func TestValidateCfdi_SATNoDisponibleNoMuta(t *testing.T) {
	repo := &repoStub{cfdi: testCfdi()}
	r := newReconciler(repo, &stubConsulta{err: domain.ErrSATUnavailable})

	_, err := r.ValidateCfdi(context.Background(), "cliente-1", dto.ValidateCfdiRequest{UUID: testUUID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSATUnavailable))
	assert.False(t, repo.updated, "un fallo de transporte no debe tocar la fila")
}

func TestValidateCfdi_UUIDDesconocido(t *testing.T) {
	repo := &repoStub{}
	r := newReconciler(repo, &stubConsulta{})

	_, err := r.ValidateCfdi(context.Background(), "cliente-1", dto.ValidateCfdiRequest{UUID: testUUID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
