package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coliman/portal-cfdi-api/internal/application/cfdis"
	"github.com/coliman/portal-cfdi-api/internal/application/dto"
	"github.com/coliman/portal-cfdi-api/internal/application/ingest"
	"github.com/coliman/portal-cfdi-api/internal/application/validation"
	"github.com/coliman/portal-cfdi-api/internal/domain"
	"github.com/coliman/portal-cfdi-api/internal/domain/entity"
	"github.com/coliman/portal-cfdi-api/internal/domain/repository"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/archive"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/sat"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/storage"
	apphttp "github.com/coliman/portal-cfdi-api/internal/interfaces/http"
)

const handlerTestUUID = "AAAA1111-BB22-CC33-DD44-EEEEFFFF00AA"

func cfdiXML(fiscalUUID string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0"
  TipoDeComprobante="I" Fecha="2025-03-07T09:12:33"
  SubTotal="100.00" Total="116.00" Moneda="MXN">
  <cfdi:Emisor Rfc="AAA010101AAA" Nombre="Emisor Prueba"/>
  <cfdi:Receptor Rfc="BBB020202BB2" Nombre="Receptor Prueba"/>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital"
      Version="1.1" UUID="%s"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`, fiscalUUID))
}

// memRepo repo en memoria para el handler (suficiente para el flujo HTTP).
type memRepo struct {
	rows      map[string]*entity.Cfdi
	conceptos map[string][]*entity.CfdiConcepto
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]*entity.Cfdi{}, conceptos: map[string][]*entity.CfdiConcepto{}}
}

func (m *memRepo) Create(c *entity.Cfdi) error {
	k := c.ClientID + "/" + c.UUID
	if _, ok := m.rows[k]; ok {
		return domain.ErrDuplicateInvoice
	}
	m.rows[k] = c
	return nil
}

func (m *memRepo) CreateConcepto(con *entity.CfdiConcepto) error {
	m.conceptos[con.CfdiID] = append(m.conceptos[con.CfdiID], con)
	return nil
}

func (m *memRepo) ExistsByUUID(clientID, fiscalUUID string) (bool, error) {
	_, ok := m.rows[clientID+"/"+fiscalUUID]
	return ok, nil
}

func (m *memRepo) GetByID(clientID, id string) (*entity.Cfdi, error) {
	for _, c := range m.rows {
		if c.ClientID == clientID && c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memRepo) GetByUUID(clientID, fiscalUUID string) (*entity.Cfdi, error) {
	return m.rows[clientID+"/"+fiscalUUID], nil
}

func (m *memRepo) GetConceptosByCfdiID(cfdiID string) ([]*entity.CfdiConcepto, error) {
	return m.conceptos[cfdiID], nil
}

func (m *memRepo) List(clientID string, limit, offset int) ([]*entity.Cfdi, error) {
	var out []*entity.Cfdi
	for _, c := range m.rows {
		if c.ClientID == clientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) Count(clientID string) (int, error) {
	list, _ := m.List(clientID, 0, 0)
	return len(list), nil
}

func (m *memRepo) UpdateValidacion(clientID, fiscalUUID, estatus, respuesta string, fecha time.Time) error {
	c, ok := m.rows[clientID+"/"+fiscalUUID]
	if !ok {
		return domain.ErrNotFound
	}
	c.EstatusValidacion = estatus
	c.ValidacionSATRespuesta = respuesta
	c.ValidacionSATFecha = &fecha
	return nil
}

func (m *memRepo) UpdateEstatusManual(clientID, id, estatus string) error {
	c, _ := m.GetByID(clientID, id)
	if c == nil {
		return domain.ErrNotFound
	}
	c.EstatusValidacion = estatus
	return nil
}

type memTx struct{ repo *memRepo }

func (t *memTx) Run(_ context.Context, fn func(repository.CfdiRepository) error) error {
	return fn(t.repo)
}

type stubSAT struct {
	result *sat.ConsultaResult
	err    error
}

func (s *stubSAT) Consulta(context.Context, sat.ConsultaRequest) (*sat.ConsultaResult, error) {
	return s.result, s.err
}

func buildAPI(t *testing.T, consulta validation.ConsultaPort) (*fiber.App, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	store := storage.NewStore(afero.NewMemMapFs(), "/data")
	ingestUC := ingest.NewUseCase(repo, &memTx{repo: repo}, store,
		archive.NewExtractor(zerolog.Nop()), zerolog.Nop(), false)
	reconciler := validation.NewReconciler(repo, consulta, zerolog.Nop())

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		IngestUC:   ingestUC,
		CfdisUC:    cfdis.NewUseCase(repo),
		Reconciler: reconciler,
		JWTSecret:  testJWTSecret,
	})
	return app, repo
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func authedRequest(t *testing.T, method, target, contentType string, body *bytes.Buffer, role string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", tokenForRole(t, role))
	return req
}

func TestUpload_LedgerCompleto(t *testing.T) {
	app, repo := buildAPI(t, &stubSAT{})

	body, contentType := multipartBody(t, map[string][]byte{
		"factura.xml": cfdiXML(handlerTestUUID),
	})
	req := authedRequest(t, http.MethodPost, "/api/cfdis/upload", contentType, body, "admin")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Success)
	assert.Equal(t, 0, out.Errors)
	require.Len(t, out.Results, 1)
	assert.Equal(t, handlerTestUUID, out.Results[0].UUID)
	assert.Equal(t, ingest.StatusSuccess, out.Results[0].Status)
	assert.Len(t, repo.rows, 1)
}

func TestUpload_ArchivoCorruptoEnLedger(t *testing.T) {
	app, _ := buildAPI(t, &stubSAT{})

	body, contentType := multipartBody(t, map[string][]byte{
		"roto.xml": []byte("<roto"),
	})
	req := authedRequest(t, http.MethodPost, "/api/cfdis/upload", contentType, body, "admin")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	// El batch responde 200: el fallo queda en el ledger, no en el status HTTP.
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Errors)
	require.Len(t, out.Results, 1)
	assert.Equal(t, ingest.StatusParseError, out.Results[0].Status)
}

func TestUpload_SinArchivos(t *testing.T) {
	app, _ := buildAPI(t, &stubSAT{})

	body, contentType := multipartBody(t, map[string][]byte{})
	req := authedRequest(t, http.MethodPost, "/api/cfdis/upload", contentType, body, "admin")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_SinToken(t *testing.T) {
	app, _ := buildAPI(t, &stubSAT{})

	req := httptest.NewRequest(http.MethodPost, "/api/cfdis/upload", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func ingestOne(t *testing.T, app *fiber.App) {
	t.Helper()
	body, contentType := multipartBody(t, map[string][]byte{
		"factura.xml": cfdiXML(handlerTestUUID),
	})
	req := authedRequest(t, http.MethodPost, "/api/cfdis/upload", contentType, body, "admin")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestValidate_Vigente(t *testing.T) {
	app, _ := buildAPI(t, &stubSAT{result: &sat.ConsultaResult{Estado: "Vigente"}})
	ingestOne(t, app)

	payload := bytes.NewBufferString(`{"uuid":"` + handlerTestUUID + `"}`)
	req := authedRequest(t, http.MethodPost, "/api/cfdis/validate", "application/json", payload, "admin")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.ValidateCfdiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, entity.ValidacionValido, out.Estatus)
}

func TestValidate_SATNoDisponible(t *testing.T) {
	app, _ := buildAPI(t, &stubSAT{err: domain.ErrSATUnavailable})
	ingestOne(t, app)

	payload := bytes.NewBufferString(`{"uuid":"` + handlerTestUUID + `"}`)
	req := authedRequest(t, http.MethodPost, "/api/cfdis/validate", "application/json", payload, "admin")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	bodyBytes := new(bytes.Buffer)
	_, _ = bodyBytes.ReadFrom(resp.Body)
	assert.Contains(t, bodyBytes.String(), "SAT_UNAVAILABLE")
}

func TestGetByID_NoEncontrado(t *testing.T) {
	app, _ := buildAPI(t, &stubSAT{})

	req := authedRequest(t, http.MethodGet, "/api/cfdis/no-existe", "", nil, "consulta")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateEstatus_SoloAdmin(t *testing.T) {
	app, repo := buildAPI(t, &stubSAT{})
	ingestOne(t, app)

	var id string
	for _, c := range repo.rows {
		id = c.ID
	}
	require.NotEmpty(t, id)

	t.Run("consulta bloqueado", func(t *testing.T) {
		payload := bytes.NewBufferString(`{"estatus":"en_revision"}`)
		req := authedRequest(t, http.MethodPatch, "/api/cfdis/"+id+"/estatus", "application/json", payload, "consulta")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin permitido", func(t *testing.T) {
		payload := bytes.NewBufferString(`{"estatus":"en_revision"}`)
		req := authedRequest(t, http.MethodPatch, "/api/cfdis/"+id+"/estatus", "application/json", payload, "admin")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		c, _ := repo.GetByID(testClientID, id)
		require.NotNil(t, c)
		assert.Equal(t, entity.ValidacionEnRevision, c.EstatusValidacion)
	})

	t.Run("estatus desconocido", func(t *testing.T) {
		payload := bytes.NewBufferString(`{"estatus":"lo-que-sea"}`)
		req := authedRequest(t, http.MethodPatch, "/api/cfdis/"+id+"/estatus", "application/json", payload, "admin")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestList_Paginado(t *testing.T) {
	app, _ := buildAPI(t, &stubSAT{})
	ingestOne(t, app)

	req := authedRequest(t, http.MethodGet, "/api/cfdis/?limit=10&offset=0", "", nil, "consulta")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.ListCfdisResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, handlerTestUUID, out.Items[0].UUID)
	assert.Equal(t, 1, out.Page.Total)
	assert.True(t, strings.EqualFold(out.Items[0].EstatusValidacion, entity.ValidacionPendiente))
}
