package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estatus de validación de un CFDI contra el SAT.
// pendiente -> {valido, rechazado} vía el reconciliador; en_revision solo
// se asigna manualmente y nunca lo escribe el reconciliador.
const (
	ValidacionPendiente  = "pendiente"
	ValidacionValido     = "valido"
	ValidacionRechazado  = "rechazado"
	ValidacionEnRevision = "en_revision"
)

// Tipos de comprobante CFDI (atributo TipoDeComprobante).
const (
	TipoIngreso  = "I"
	TipoEgreso   = "E"
	TipoTraslado = "T"
	TipoNomina   = "N"
	TipoPago     = "P"
)

// Cfdi representa un comprobante fiscal ingerido. Identidad de negocio:
// (ClientID, UUID) único; el mismo UUID puede existir bajo dos clientes
// distintos. Tras la ingesta solo el reconciliador muta los campos de
// validación; nunca se borra.
type Cfdi struct {
	ID              string
	ClientID        string
	UUID            string // folio fiscal del TimbreFiscalDigital
	Version         string
	TipoComprobante string // ver constantes Tipo*
	Serie           string
	Folio           string
	Fecha           time.Time // fecha de emisión del comprobante

	EmisorRFC     string
	EmisorNombre  string
	EmisorRegimen string

	ReceptorRFC     string
	ReceptorNombre  string
	ReceptorUsoCFDI string

	Subtotal   decimal.Decimal
	Descuento  decimal.Decimal
	Total      decimal.Decimal
	Moneda     string
	TipoCambio decimal.Decimal

	TotalImpuestosTrasladados decimal.Decimal
	TotalImpuestosRetenidos   decimal.Decimal

	MetodoPago      string
	FormaPago       string
	LugarExpedicion string

	// Rutas relativas bajo el directorio base de insumos (YYYY/MM/DD/archivo).
	XMLPath string
	PDFPath string // vacío si no llegó PDF compañero

	EstatusValidacion      string
	ValidacionSATFecha     *time.Time // última consulta al SAT; nil si nunca
	ValidacionSATRespuesta string     // respuesta cruda del SAT (JSON)

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CfdiConcepto representa una línea de concepto del comprobante. Vive con su
// Cfdi padre: se inserta en la misma transacción y se recrea en lote si el
// padre se re-ingesta. El orden de inserción es el orden del documento.
type CfdiConcepto struct {
	ID            string
	CfdiID        string
	ClaveProdServ string
	ClaveUnidad   string
	Unidad        string
	Cantidad      decimal.Decimal
	Descripcion   string
	ValorUnitario decimal.Decimal
	Importe       decimal.Decimal
	Descuento     decimal.Decimal
}
