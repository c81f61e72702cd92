// Package storage escribe los insumos XML/PDF bajo una estructura de carpetas
// por fecha de ingesta: <base>/YYYY/MM/DD/<archivo>. La fecha es la del
// instante en que llega el archivo, no la fecha de emisión del comprobante:
// los buckets reflejan cuándo entró el insumo al portal.
package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// DropFolderName es la subcarpeta de insumos sueltos que import-folder
// escanea (compatibilidad con el flujo de carga manual en disco).
const DropFolderName = "Insumos XML"

// Store asigna rutas por fecha y escribe contenido bajo BasePath. El reloj es
// inyectable para que los tests fijen el bucket.
type Store struct {
	fs       afero.Fs
	basePath string
	now      func() time.Time
}

// NewStore construye el store sobre el filesystem dado (afero.NewOsFs en
// producción, MemMapFs en tests).
func NewStore(fs afero.Fs, basePath string) *Store {
	return &Store{fs: fs, basePath: basePath, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// bucket devuelve el segmento YYYY/MM/DD para el instante dado.
func bucket(ref time.Time) string {
	return ref.Format("2006/01/02")
}

// SaveXML escribe un XML en el bucket del día y devuelve su ruta relativa
// (lo que se persiste en la base de datos).
func (s *Store) SaveXML(filename string, content []byte) (string, error) {
	rel, _, err := s.savePair(s.now(), filename, content, "", nil)
	return rel, err
}

// SavePair escribe un XML y su PDF compañero opcional. Ambos archivos caen en
// el mismo bucket, calculado una sola vez: un par nunca queda partido por un
// cambio de día a medianoche. pdfName vacío omite el PDF y devuelve "".
func (s *Store) SavePair(xmlName string, xmlContent []byte, pdfName string, pdfContent []byte) (xmlRel, pdfRel string, err error) {
	return s.savePair(s.now(), xmlName, xmlContent, pdfName, pdfContent)
}

func (s *Store) savePair(ref time.Time, xmlName string, xmlContent []byte, pdfName string, pdfContent []byte) (string, string, error) {
	day := bucket(ref)
	dir := filepath.Join(s.basePath, filepath.FromSlash(day))
	// create-if-absent: nunca falla por existir
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("crear bucket %s: %w", day, err)
	}

	xmlRel := path.Join(day, xmlName)
	if err := afero.WriteFile(s.fs, filepath.Join(dir, xmlName), xmlContent, 0o644); err != nil {
		return "", "", fmt.Errorf("guardar XML %s: %w", xmlName, err)
	}

	var pdfRel string
	if pdfName != "" {
		if err := afero.WriteFile(s.fs, filepath.Join(dir, pdfName), pdfContent, 0o644); err != nil {
			return "", "", fmt.Errorf("guardar PDF %s: %w", pdfName, err)
		}
		pdfRel = path.Join(day, pdfName)
	}
	return xmlRel, pdfRel, nil
}

// Remove borra un archivo por su ruta relativa. Se usa para retirar escrituras
// parciales cuando el INSERT del CFDI resulta duplicado bajo carrera.
func (s *Store) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	err := s.fs.Remove(filepath.Join(s.basePath, filepath.FromSlash(rel)))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// ListDropFolder lista los nombres de los .xml sueltos en la carpeta de
// insumos (<base>/Insumos XML). Carpeta ausente devuelve lista vacía.
func (s *Store) ListDropFolder() ([]string, error) {
	dir := filepath.Join(s.basePath, DropFolderName)
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("leer carpeta de insumos: %w", err)
	}
	var names []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if filepath.Ext(info.Name()) == ".xml" || filepath.Ext(info.Name()) == ".XML" {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

// ReadDropFile lee un archivo de la carpeta de insumos. (nil, nil) si no
// existe: el PDF hermano de un XML es opcional.
func (s *Store) ReadDropFile(name string) ([]byte, error) {
	content, err := afero.ReadFile(s.fs, filepath.Join(s.basePath, DropFolderName, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return content, nil
}
