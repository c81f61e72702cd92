// Package archive desempaqueta archivos comprimidos (ZIP, RAR, 7Z) de una
// carga de CFDIs y agrupa su contenido en pares XML + PDF compañero.
//
// Cada llamada trabaja sobre un directorio scratch privado creado con
// os.MkdirTemp y eliminado incondicionalmente al salir (éxito o fallo):
// ningún contenido extraído sobrevive a la llamada ni se comparte entre
// batches concurrentes.
package archive

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
	"github.com/rs/zerolog"
)

// FilePair es un XML extraído con su PDF compañero opcional (mismo nombre
// base dentro del comprimido). PDF es nil si no hay compañero.
type FilePair struct {
	XMLName string
	XML     []byte
	PDFName string
	PDF     []byte
}

// Result es el resultado de desempaquetar un comprimido. OrphanPDFs lista los
// PDF sin XML del mismo nombre base; reportarlos o no es decisión del caller.
type Result struct {
	Pairs      []FilePair
	OrphanPDFs []string
}

// IsCompressed reporta si la extensión del archivo corresponde a un formato
// de compresión soportado.
func IsCompressed(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".zip", ".rar", ".7z":
		return true
	}
	return false
}

// Extractor desempaqueta comprimidos de carga. Cualquier fallo de librería
// (comprimido corrupto, sub-formato no soportado) degrada a resultado vacío:
// el batch no se aborta por un comprimido ilegible.
type Extractor struct {
	log zerolog.Logger
}

// NewExtractor construye el extractor.
func NewExtractor(log zerolog.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract desempaqueta el contenido según la extensión del nombre declarado y
// devuelve los pares XML+PDF agrupados por nombre base (extensión comparada
// case-insensitive). Extensión no soportada o comprimido ilegible devuelven
// un Result vacío, nunca error.
func (e *Extractor) Extract(content []byte, filename string) Result {
	scratch, err := os.MkdirTemp("", "cfdi-extract-")
	if err != nil {
		e.log.Warn().Err(err).Msg("no se pudo crear scratch de extracción")
		return Result{}
	}
	defer os.RemoveAll(scratch)

	// zip y 7z necesitan un ReaderAt con tamaño: se materializa el comprimido
	// dentro del scratch y se extrae ahí mismo.
	archivePath := filepath.Join(scratch, filepath.Base(filename))
	if err := os.WriteFile(archivePath, content, 0o600); err != nil {
		e.log.Warn().Err(err).Str("file", filename).Msg("no se pudo escribir el comprimido al scratch")
		return Result{}
	}
	dest := filepath.Join(scratch, "contents")
	if err := os.MkdirAll(dest, 0o700); err != nil {
		e.log.Warn().Err(err).Msg("no se pudo crear destino de extracción")
		return Result{}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".zip":
		err = extractZip(archivePath, dest)
	case ".rar":
		err = extractRar(archivePath, dest)
	case ".7z":
		err = extract7z(archivePath, dest)
	default:
		return Result{}
	}
	if err != nil {
		e.log.Warn().Err(err).Str("file", filename).Msg("extracción fallida, se ignora el comprimido")
		return Result{}
	}
	return groupByBaseName(dest)
}

// groupByBaseName recorre el contenido extraído y agrupa .xml/.pdf por nombre
// base. Un grupo entra al resultado solo si tiene XML; el PDF es opcional.
// El orden de los grupos es el de primera aparición en el recorrido.
func groupByBaseName(dest string) Result {
	type group struct {
		xmlName string
		xml     []byte
		pdfName string
		pdf     []byte
	}
	groups := map[string]*group{}
	var order []string

	_ = filepath.Walk(dest, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(info.Name()))
		if ext != ".xml" && ext != ".pdf" {
			return nil
		}
		base := strings.ToLower(strings.TrimSuffix(info.Name(), filepath.Ext(info.Name())))
		g, ok := groups[base]
		if !ok {
			g = &group{}
			groups[base] = g
			order = append(order, base)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if ext == ".xml" {
			g.xmlName, g.xml = info.Name(), content
		} else {
			g.pdfName, g.pdf = info.Name(), content
		}
		return nil
	})

	var res Result
	for _, base := range order {
		g := groups[base]
		if g.xml == nil {
			if g.pdfName != "" {
				res.OrphanPDFs = append(res.OrphanPDFs, g.pdfName)
			}
			continue
		}
		res.Pairs = append(res.Pairs, FilePair{
			XMLName: g.xmlName, XML: g.xml,
			PDFName: g.pdfName, PDF: g.pdf,
		})
	}
	return res
}

// safeJoin resuelve el nombre de una entrada dentro de dest rechazando rutas
// absolutas o con "..": una entrada maliciosa no debe escapar del scratch.
func safeJoin(dest, name string) (string, bool) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(dest, cleaned), true
}

func writeEntry(dest, name string, r io.Reader) error {
	out, ok := safeJoin(dest, name)
	if !ok {
		return nil // entrada sospechosa: se omite
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		// ErrInsecurePath deja el reader utilizable: las entradas sospechosas
		// las filtra safeJoin una por una.
		if !errors.Is(err, zip.ErrInsecurePath) || zr == nil {
			return err
		}
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(dest, f.Name, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractRar(archivePath, dest string) error {
	rr, err := rardecode.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer rr.Close()
	for {
		hdr, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.IsDir {
			continue
		}
		if err := writeEntry(dest, hdr.Name, rr); err != nil {
			return err
		}
	}
}

func extract7z(archivePath, dest string) error {
	sz, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer sz.Close()
	for _, f := range sz.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(dest, f.Name, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
