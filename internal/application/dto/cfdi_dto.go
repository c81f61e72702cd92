package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// UploadItemResult resultado por archivo del batch de ingesta. Status es uno
// de: success, duplicate, parse-error, unsupported-format.
type UploadItemResult struct {
	Filename string `json:"filename"`
	UUID     string `json:"uuid,omitempty"`
	Status   string `json:"status"`
	Path     string `json:"path,omitempty"`
	PDFPath  string `json:"pdf_path,omitempty"`
}

// UploadItemError detalle de un archivo que no pudo procesarse.
type UploadItemError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResponse ledger completo de un batch: un renglón por archivo lógico,
// en el orden en que se recibieron.
type UploadResponse struct {
	Success      int                `json:"success"`
	Errors       int                `json:"errors"`
	TotalFiles   int                `json:"total_files"`
	Results      []UploadItemResult `json:"results"`
	ErrorsDetail []UploadItemError  `json:"errors_detail"`
}

// CfdiResponse salida de un comprobante en listados y detalle.
type CfdiResponse struct {
	ID                string          `json:"id"`
	UUID              string          `json:"uuid"`
	Version           string          `json:"version"`
	TipoComprobante   string          `json:"tipo_comprobante"`
	Serie             string          `json:"serie,omitempty"`
	Folio             string          `json:"folio,omitempty"`
	Fecha             time.Time       `json:"fecha"`
	EmisorRFC         string          `json:"emisor_rfc"`
	EmisorNombre      string          `json:"emisor_nombre"`
	ReceptorRFC       string          `json:"receptor_rfc"`
	ReceptorNombre    string          `json:"receptor_nombre"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Descuento         decimal.Decimal `json:"descuento"`
	Total             decimal.Decimal `json:"total"`
	Moneda            string          `json:"moneda"`
	MetodoPago        string          `json:"metodo_pago,omitempty"`
	FormaPago         string          `json:"forma_pago,omitempty"`
	XMLPath           string          `json:"xml_path"`
	PDFPath           string          `json:"pdf_path,omitempty"`
	EstatusValidacion string          `json:"estatus_validacion"`
	ValidacionFecha   *time.Time      `json:"validacion_sat_fecha,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// CfdiConceptoResponse línea de concepto en el detalle.
type CfdiConceptoResponse struct {
	ClaveProdServ string          `json:"clave_prod_serv,omitempty"`
	ClaveUnidad   string          `json:"clave_unidad,omitempty"`
	Unidad        string          `json:"unidad,omitempty"`
	Cantidad      decimal.Decimal `json:"cantidad"`
	Descripcion   string          `json:"descripcion"`
	ValorUnitario decimal.Decimal `json:"valor_unitario"`
	Importe       decimal.Decimal `json:"importe"`
	Descuento     decimal.Decimal `json:"descuento"`
}

// CfdiDetailResponse detalle completo: cabecera + conceptos + última respuesta del SAT.
type CfdiDetailResponse struct {
	CfdiResponse
	LugarExpedicion        string                 `json:"lugar_expedicion,omitempty"`
	TipoCambio             decimal.Decimal        `json:"tipo_cambio"`
	TotalImpTrasladados    decimal.Decimal        `json:"total_impuestos_trasladados"`
	TotalImpRetenidos      decimal.Decimal        `json:"total_impuestos_retenidos"`
	Conceptos              []CfdiConceptoResponse `json:"conceptos"`
	ValidacionSATRespuesta string                 `json:"validacion_sat_respuesta,omitempty"`
}

// ListCfdisResponse página de comprobantes.
type ListCfdisResponse struct {
	Items []CfdiResponse `json:"items"`
	Page  PageResponse   `json:"page"`
}

// ValidateCfdiRequest entrada para revalidar un CFDI contra el SAT.
type ValidateCfdiRequest struct {
	UUID string `json:"uuid" validate:"required,uuid"`
}

// ValidateCfdiResponse resultado de la consulta al SAT ya mapeado a estatus interno.
type ValidateCfdiResponse struct {
	UUID          string    `json:"uuid"`
	Estatus       string    `json:"estatus"`
	Estado        string    `json:"estado_sat"`
	CodigoEstatus string    `json:"codigo_estatus"`
	ConsultadoEn  time.Time `json:"consultado_en"`
}

// UpdateEstatusRequest entrada para marcar un comprobante manualmente.
type UpdateEstatusRequest struct {
	Estatus string `json:"estatus" validate:"required,oneof=pendiente valido rechazado en_revision"`
}
