package ingest

import (
	"context"

	"github.com/coliman/portal-cfdi-api/internal/domain/repository"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/archive"
)

// TxRunner ejecuta fn dentro de una transacción con un repo atado a ella.
// Cabecera y conceptos de un comprobante se confirman o descartan juntos.
type TxRunner interface {
	Run(ctx context.Context, fn func(cfdiRepo repository.CfdiRepository) error) error
}

// FileStore puerto de persistencia de archivos del comprobante. Las rutas
// devueltas son relativas al almacén (bucket año/mes/día incluido).
type FileStore interface {
	SaveXML(filename string, content []byte) (string, error)
	SavePair(xmlName string, xmlContent []byte, pdfName string, pdfContent []byte) (string, string, error)
	Remove(rel string) error
	ListDropFolder() ([]string, error)
	ReadDropFile(name string) ([]byte, error)
}

// Unpacker puerto del extractor de comprimidos.
type Unpacker interface {
	Extract(content []byte, filename string) archive.Result
}
