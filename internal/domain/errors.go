package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound         = errors.New("recurso no encontrado")
	ErrUserNotFound     = errors.New("usuario no encontrado")
	ErrInvalidInput     = errors.New("entrada inválida")
	ErrUnauthorized     = errors.New("no autorizado")
	ErrForbidden        = errors.New("acceso denegado")

	// Errores del pipeline de ingesta. Todos se registran por item en el
	// ledger del batch; ninguno aborta el resto de la carga.
	ErrUnsupportedFormat = errors.New("formato de archivo no soportado")
	ErrExtractionEmpty   = errors.New("no se encontraron archivos XML en el comprimido")
	ErrMalformedDocument = errors.New("documento XML malformado")
	ErrMissingUUID       = errors.New("no se encontró UUID en el XML")
	ErrDuplicateInvoice  = errors.New("CFDI duplicado")

	// ErrSATUnavailable indica timeout o fallo de transporte contra el WS del
	// SAT. Es reintentable: el estatus almacenado no se toca.
	ErrSATUnavailable = errors.New("servicio del SAT no disponible")
)
