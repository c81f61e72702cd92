package sat

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coliman/portal-cfdi-api/internal/domain"
)

const (
	// DefaultConsultaURL es el endpoint público de ConsultaCFDI del SAT.
	DefaultConsultaURL = "https://consultaqr.facturaelectronica.sat.gob.mx/ConsultaCFDIService.svc"

	soapNS     = "http://schemas.xmlsoap.org/soap/envelope/"
	tempuriNS  = "http://tempuri.org/"
	soapAction = "http://tempuri.org/IConsultaCFDIService/Consulta"
)

// ConsultaRequest identifica el CFDI a consultar ante el SAT.
type ConsultaRequest struct {
	EmisorRFC   string
	ReceptorRFC string
	Total       decimal.Decimal
	UUID        string
}

// ConsultaResult respuesta cruda del servicio ConsultaCFDI.
type ConsultaResult struct {
	CodigoEstatus      string `json:"codigo_estatus"`
	Estado             string `json:"estado"` // Vigente, Cancelado, No Encontrado
	EsCancelable       string `json:"es_cancelable"`
	EstatusCancelacion string `json:"estatus_cancelacion"`
	ValidacionEFOS     string `json:"validacion_efos"`
}

// ConsultaClient consulta el estatus de un CFDI en el WS SOAP del SAT.
// Usa net/http de la stdlib; no requiere librerías de terceros.
type ConsultaClient struct {
	url        string
	httpClient *http.Client
}

// NewConsultaClient construye el cliente. url vacío usa el endpoint público;
// timeout cero usa 30 s (el WS del SAT suele tardar).
func NewConsultaClient(url string, timeout time.Duration) *ConsultaClient {
	if url == "" {
		url = DefaultConsultaURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ConsultaClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type consultaEnvelope struct {
	XMLName  xml.Name     `xml:"soapenv:Envelope"`
	XmlnsEnv string       `xml:"xmlns:soapenv,attr"`
	XmlnsTem string       `xml:"xmlns:tem,attr"`
	Body     consultaBody `xml:"soapenv:Body"`
}

type consultaBody struct {
	Consulta consultaOp `xml:"tem:Consulta"`
}

type consultaOp struct {
	// El SAT espera la expresión impresa del QR tal cual, por eso va en CDATA.
	ExpresionImpresa cdata `xml:"tem:expresionImpresa"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

type consultaResponseEnvelope struct {
	Body consultaResponseBody `xml:"Body"`
}

type consultaResponseBody struct {
	Response *consultaResponse `xml:"ConsultaResponse"`
	Fault    *soapFault        `xml:"Fault"`
}

type consultaResponse struct {
	Result consultaResponseResult `xml:"ConsultaResult"`
}

type consultaResponseResult struct {
	CodigoEstatus      string `xml:"CodigoEstatus"`
	Estado             string `xml:"Estado"`
	EsCancelable       string `xml:"EsCancelable"`
	EstatusCancelacion string `xml:"EstatusCancelacion"`
	ValidacionEFOS     string `xml:"ValidacionEFOS"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Consulta ──────────────────────────────────────────────────────────────────

// Consulta llama al WS del SAT y devuelve el resultado crudo. Los fallos de
// red, timeout o respuesta ilegible se envuelven en domain.ErrSATUnavailable:
// no dicen nada sobre el comprobante y el caller puede reintentar.
func (c *ConsultaClient) Consulta(ctx context.Context, req ConsultaRequest) (*ConsultaResult, error) {
	envelope := consultaEnvelope{
		XmlnsEnv: soapNS,
		XmlnsTem: tempuriNS,
		Body: consultaBody{
			Consulta: consultaOp{
				ExpresionImpresa: cdata{Value: ExpresionImpresa(req)},
			},
		},
	}

	xmlPayload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("sat: serializar envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader(xmlPayload))
	if err != nil {
		return nil, fmt.Errorf("sat: crear request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", soapAction)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSATUnavailable, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("%w: leer respuesta: %v", domain.ErrSATUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrSATUnavailable, resp.StatusCode)
	}

	var envResp consultaResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		return nil, fmt.Errorf("%w: respuesta SOAP ilegible: %v", domain.ErrSATUnavailable, err)
	}
	if envResp.Body.Fault != nil {
		return nil, fmt.Errorf("%w: SOAP Fault [%s]: %s", domain.ErrSATUnavailable,
			envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString)
	}
	if envResp.Body.Response == nil {
		return nil, fmt.Errorf("%w: respuesta SOAP vacía", domain.ErrSATUnavailable)
	}

	r := envResp.Body.Response.Result
	return &ConsultaResult{
		CodigoEstatus:      r.CodigoEstatus,
		Estado:             r.Estado,
		EsCancelable:       r.EsCancelable,
		EstatusCancelacion: r.EstatusCancelacion,
		ValidacionEFOS:     r.ValidacionEFOS,
	}, nil
}

// ExpresionImpresa arma la cadena del QR del CFDI: mismo formato que imprime
// el PAC, con el total a seis decimales.
func ExpresionImpresa(req ConsultaRequest) string {
	return fmt.Sprintf("?re=%s&rr=%s&tt=%s&id=%s",
		req.EmisorRFC, req.ReceptorRFC, req.Total.StringFixed(6), req.UUID)
}
