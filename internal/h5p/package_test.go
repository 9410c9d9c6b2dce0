package h5p

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
)

func buildPackage(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

func readOut(t *testing.T, store *storage.FileStore, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(store.Root(), rel))
	require.NoError(t, err)
	return string(data)
}

const columnContent = `{
  "content": [
    {"content": {"library": "H5P.AdvancedText 1.1", "params": {"text": "<h2>Le modèle OSI</h2><p>Sept couches.</p>"}}},
    {"content": {"library": "H5P.Image 1.1", "params": {"file": {"path": "images/osi.png", "mime": "image/png"}, "alt": "Schéma OSI"}}},
    {"content": {"library": "H5P.Video 1.5", "params": {"sources": [{"path": "https://www.youtube.com/watch?v=abc", "mime": "video/YouTube"}]}}},
    {"content": {"library": "H5P.Video 1.5", "params": {"sources": [{"path": "videos/intro.mp4", "mime": "video/mp4"}]}}}
  ]
}`

func TestRenderColumn(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"h5p.json":                     `{"title": "OSI", "mainLibrary": "H5P.Column"}`,
		"content/content.json":         columnContent,
		"content/images/osi.png":       "PNG",
		"content/videos/intro.mp4":     "MP4",
		"H5P.Column-1.16/library.json": `{}`,
	})

	pkg, err := ReadPackage(data)
	require.NoError(t, err)
	assert.Equal(t, "H5P.Column", pkg.MainLibrary)

	store := newTestStore(t)
	files, err := pkg.Render(t.Context(), store, "cours/OSI", "Le modèle OSI")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join("cours/OSI", "Le_modèle_OSI.md")}, files)

	md := readOut(t, store, files[0])
	assert.Equal(t, "# Le modèle OSI\n\n"+
		"Le modèle OSI\nSept couches.\n\n---\n\n"+
		"![Schéma OSI](osi.png)\n\n---\n\n"+
		"[Vidéo externe](https://www.youtube.com/watch?v=abc)\n\n---\n\n"+
		"[Vidéo locale](intro.mp4)\n\n---\n", md)

	assert.Equal(t, "PNG", readOut(t, store, "cours/OSI/osi.png"))
	assert.Equal(t, "MP4", readOut(t, store, "cours/OSI/intro.mp4"))
}

func TestRenderInteractiveBook(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"h5p.json": `{"mainLibrary": "H5P.InteractiveBook"}`,
		"content/content.json": `{"chapters": [
  {"title": "Introduction", "params": {"content": [
    {"content": {"library": "H5P.AdvancedText 1.1", "params": {"text": "<p>Bienvenue</p>"}}}
  ]}},
  {"params": {"content": [
    {"content": {"library": "H5P.AdvancedText 1.1", "params": {"text": "<p>Suite</p>"}}}
  ]}}
]}`,
	})

	pkg, err := ReadPackage(data)
	require.NoError(t, err)

	store := newTestStore(t)
	files, err := pkg.Render(t.Context(), store, "livre", "Livre")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join("livre", "CHAP_1_Introduction.md"),
		filepath.Join("livre", "CHAP_2_Chapitre_2.md"),
	}, files)

	assert.Equal(t, "# Introduction\n\nBienvenue\n\n---\n", readOut(t, store, files[0]))
	assert.Equal(t, "# Chapitre 2\n\nSuite\n\n---\n", readOut(t, store, files[1]))
}

func TestReadPackageErrors(t *testing.T) {
	_, err := ReadPackage([]byte("not a zip"))
	assert.Error(t, err)

	_, err = ReadPackage(buildPackage(t, map[string]string{"h5p.json": `{}`}))
	assert.ErrorIs(t, err, ErrNoContent)

	_, err = ReadPackage(buildPackage(t, map[string]string{"content/content.json": `{"a": `}))
	assert.Error(t, err)
}

func TestDecodeJSONKeepsKeyOrder(t *testing.T) {
	v, err := decodeJSON([]byte(`{"z": 1, "a": {"y": [true, null, "x"], "b": 2.5}, "m": "s"}`))
	require.NoError(t, err)

	root, ok := v.(*object)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "m"}, root.keys)
	assert.Equal(t, []string{"y", "b"}, root.obj("a").keys)
	assert.Equal(t, []any{true, nil, "x"}, root.obj("a").list("y"))
	assert.Equal(t, "s", root.str("m"))

	var missing *object
	assert.Nil(t, missing.get("x"))
	assert.Equal(t, "", missing.obj("x").str("y"))

	_, err = decodeJSON([]byte(`{"a": 1} {"b": 2}`))
	assert.Error(t, err)
}

func parseHTML(t *testing.T, page string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc.Selection
}
