package archive_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coliman/portal-cfdi-api/internal/infrastructure/archive"
)

// buildZip arma un ZIP en memoria con los archivos dados.
func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newExtractor() *archive.Extractor {
	return archive.NewExtractor(zerolog.Nop())
}

// Un ZIP con A.xml, A.pdf y B.xml debe producir dos grupos:
// {A.xml, A.pdf} y {B.xml, sin PDF}.
func TestExtract_AgrupaXMLConPDFCompanero(t *testing.T) {
	content := buildZip(t, map[string][]byte{
		"A.xml": []byte("<xml>a</xml>"),
		"A.pdf": []byte("%PDF-a"),
		"B.xml": []byte("<xml>b</xml>"),
	})

	res := newExtractor().Extract(content, "facturas.zip")
	require.Len(t, res.Pairs, 2)
	assert.Empty(t, res.OrphanPDFs)

	byName := map[string]archive.FilePair{}
	for _, p := range res.Pairs {
		byName[p.XMLName] = p
	}
	a := byName["A.xml"]
	assert.Equal(t, "A.pdf", a.PDFName, "el PDF del mismo nombre base debe adjuntarse")
	assert.Equal(t, []byte("%PDF-a"), a.PDF)

	b := byName["B.xml"]
	assert.Empty(t, b.PDFName)
	assert.Nil(t, b.PDF)
}

// La extensión se compara case-insensitive al agrupar.
func TestExtract_ExtensionCaseInsensitive(t *testing.T) {
	content := buildZip(t, map[string][]byte{
		"factura.XML": []byte("<xml/>"),
		"factura.PDF": []byte("%PDF"),
	})
	res := newExtractor().Extract(content, "carga.zip")
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "factura.XML", res.Pairs[0].XMLName)
	assert.Equal(t, "factura.PDF", res.Pairs[0].PDFName)
}

// Un PDF sin XML del mismo nombre base no forma grupo; queda en OrphanPDFs
// para que el caller decida si reportarlo.
func TestExtract_PDFHuerfano(t *testing.T) {
	content := buildZip(t, map[string][]byte{
		"A.xml":    []byte("<xml/>"),
		"solo.pdf": []byte("%PDF"),
	})
	res := newExtractor().Extract(content, "carga.zip")
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, []string{"solo.pdf"}, res.OrphanPDFs)
}

// Archivos dentro de subcarpetas del comprimido también se recogen.
func TestExtract_Subcarpetas(t *testing.T) {
	content := buildZip(t, map[string][]byte{
		"2025/enero/F1.xml": []byte("<xml/>"),
		"2025/enero/F1.pdf": []byte("%PDF"),
	})
	res := newExtractor().Extract(content, "carga.zip")
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "F1.xml", res.Pairs[0].XMLName)
	assert.Equal(t, "F1.pdf", res.Pairs[0].PDFName)
}

// Otros tipos de archivo dentro del comprimido se ignoran.
func TestExtract_IgnoraOtrosTipos(t *testing.T) {
	content := buildZip(t, map[string][]byte{
		"A.xml":      []byte("<xml/>"),
		"readme.txt": []byte("hola"),
		"datos.csv":  []byte("a,b"),
	})
	res := newExtractor().Extract(content, "carga.zip")
	require.Len(t, res.Pairs, 1)
}

// Extensión no soportada: resultado vacío, sin error (el orquestador lo
// registra como "sin extraíbles").
func TestExtract_ExtensionNoSoportada(t *testing.T) {
	res := newExtractor().Extract([]byte("cualquier cosa"), "archivo.tar.gz")
	assert.Empty(t, res.Pairs)
	assert.Empty(t, res.OrphanPDFs)
}

// Un comprimido corrupto degrada a resultado vacío en lugar de abortar.
func TestExtract_ZipCorrupto(t *testing.T) {
	res := newExtractor().Extract([]byte("esto no es un zip"), "roto.zip")
	assert.Empty(t, res.Pairs)
}

func TestExtract_RarCorrupto(t *testing.T) {
	res := newExtractor().Extract([]byte("esto no es un rar"), "roto.rar")
	assert.Empty(t, res.Pairs)
}

func TestExtract_7zCorrupto(t *testing.T) {
	res := newExtractor().Extract([]byte("esto no es un 7z"), "roto.7z")
	assert.Empty(t, res.Pairs)
}

// Una entrada con ruta maliciosa no debe escapar del scratch; simplemente se
// omite y el resto del comprimido se procesa.
func TestExtract_EntradaConPathTraversal(t *testing.T) {
	content := buildZip(t, map[string][]byte{
		"../../../tmp/evil.xml": []byte("<xml/>"),
		"ok.xml":                []byte("<xml/>"),
	})
	res := newExtractor().Extract(content, "carga.zip")
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "ok.xml", res.Pairs[0].XMLName)
}

func TestIsCompressed(t *testing.T) {
	assert.True(t, archive.IsCompressed("a.zip"))
	assert.True(t, archive.IsCompressed("a.RAR"))
	assert.True(t, archive.IsCompressed("a.7z"))
	assert.False(t, archive.IsCompressed("a.xml"))
	assert.False(t, archive.IsCompressed("a.tar.gz"))
}
