package storage_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coliman/portal-cfdi-api/internal/infrastructure/storage"
)

// instante fijo: el bucket no debe depender del reloj real del test.
var refInstant = time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)

func newStore(fs afero.Fs) *storage.Store {
	return storage.NewStore(fs, "/insumos").WithClock(func() time.Time { return refInstant })
}

func TestSaveXML_RutaPorFechaDeIngesta(t *testing.T) {
	fs := afero.NewMemMapFs()
	rel, err := newStore(fs).SaveXML("inv.xml", []byte("<xml/>"))
	require.NoError(t, err)

	assert.Equal(t, "2025/03/07/inv.xml", rel, "la ruta relativa usa YYYY/MM/DD del instante de ingesta")

	content, err := afero.ReadFile(fs, "/insumos/2025/03/07/inv.xml")
	require.NoError(t, err)
	assert.Equal(t, []byte("<xml/>"), content)
}

// XML y PDF comparten un único instante de referencia: ambos caen al mismo
// bucket aunque la llamada cruce medianoche.
func TestSavePair_MismoBucket(t *testing.T) {
	fs := afero.NewMemMapFs()
	ticks := 0
	st := storage.NewStore(fs, "/insumos").WithClock(func() time.Time {
		// segundo tick ya es el día siguiente; el bucket se calcula una sola vez
		ticks++
		return refInstant.AddDate(0, 0, ticks-1)
	})

	xmlRel, pdfRel, err := st.SavePair("F1.xml", []byte("<xml/>"), "F1.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "2025/03/07/F1.xml", xmlRel)
	assert.Equal(t, "2025/03/07/F1.pdf", pdfRel)
}

func TestSavePair_SinPDF(t *testing.T) {
	fs := afero.NewMemMapFs()
	xmlRel, pdfRel, err := newStore(fs).SavePair("F1.xml", []byte("<xml/>"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025/03/07/F1.xml", xmlRel)
	assert.Empty(t, pdfRel)
}

// La creación del bucket es idempotente: dos escrituras al mismo día no fallan.
func TestSaveXML_BucketExistente(t *testing.T) {
	fs := afero.NewMemMapFs()
	st := newStore(fs)
	_, err := st.SaveXML("a.xml", []byte("a"))
	require.NoError(t, err)
	_, err = st.SaveXML("b.xml", []byte("b"))
	require.NoError(t, err)
}

func TestRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	st := newStore(fs)
	rel, err := st.SaveXML("a.xml", []byte("a"))
	require.NoError(t, err)

	require.NoError(t, st.Remove(rel))
	exists, _ := afero.Exists(fs, "/insumos/2025/03/07/a.xml")
	assert.False(t, exists)

	// borrar lo ya borrado (o ruta vacía) no es error
	assert.NoError(t, st.Remove(rel))
	assert.NoError(t, st.Remove(""))
}

func TestListDropFolder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/insumos/"+storage.DropFolderName, 0o755))
	require.NoError(t, afero.WriteFile(fs, "/insumos/"+storage.DropFolderName+"/F1.xml", []byte("<xml/>"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/insumos/"+storage.DropFolderName+"/F1.pdf", []byte("%PDF"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/insumos/"+storage.DropFolderName+"/nota.txt", []byte("x"), 0o644))

	st := newStore(fs)
	names, err := st.ListDropFolder()
	require.NoError(t, err)
	assert.Equal(t, []string{"F1.xml"}, names, "solo los .xml cuentan como insumos")

	pdf, err := st.ReadDropFile("F1.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), pdf)

	missing, err := st.ReadDropFile("F2.pdf")
	require.NoError(t, err)
	assert.Nil(t, missing, "PDF hermano ausente no es error")
}

func TestListDropFolder_CarpetaAusente(t *testing.T) {
	st := newStore(afero.NewMemMapFs())
	names, err := st.ListDropFolder()
	require.NoError(t, err)
	assert.Empty(t, names)
}
