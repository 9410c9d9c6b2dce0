package moodle

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maelgoujon/moodle-resource-downloader/pkg/extractor"
)

func newResourceSite(t *testing.T) *fakeMoodle {
	t.Helper()
	f := newFakeMoodle(t)
	f.page("/mod/resource/view.php", func(r *http.Request) string {
		switch r.URL.Query().Get("id") {
		case "11":
			return `<html><head><title>Cours 1</title></head><body>
<div class="resourceworkaround"><a href="/pluginfile.php/5/mod_resource/content/1/cours1.pdf?forcedownload=1">cours1.pdf</a></div>
</body></html>`
		default:
			return `<html><head><title>Annexe réseau</title></head><body><p>Contenu HTML</p></body></html>`
		}
	})
	f.mux.HandleFunc("/mod/resource/redirect.php", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/pluginfile.php/5/mod_resource/content/1/notes.txt", http.StatusSeeOther)
	})
	f.static("/mod/url/view.php", `<html><head><title>Lien</title></head><body>
<div class="urlworkaround">Cliquer sur <a href="https://example.org/docs">https://example.org/docs</a></div>
</body></html>`)
	f.file("/pluginfile.php/5/mod_resource/content/1/cours1.pdf", "application/pdf", "%PDF-1.4 fake")
	f.file("/pluginfile.php/5/mod_resource/content/1/notes.txt", "text/plain; charset=utf-8", "notes de cours")
	return f
}

func TestDownloadResource(t *testing.T) {
	f := newResourceSite(t)
	store := newTestStore(t)
	d := NewDownloader(loggedIn(t, f), store, nil)

	t.Run("wrapper page points at a file", func(t *testing.T) {
		got, err := d.Download(t.Context(), Resource{URL: f.URL + "/mod/resource/view.php?id=11", Folder: "Réseaux_L3", Kind: KindResource})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("Réseaux_L3", "cours1.pdf"), got.File)
		assert.Equal(t, f.URL+"/pluginfile.php/5/mod_resource/content/1/cours1.pdf?forcedownload=1", got.FinalURL)
		assert.False(t, got.Skipped)

		data, err := os.ReadFile(filepath.Join(store.Root(), got.File))
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 fake", string(data))
	})

	t.Run("existing file is skipped", func(t *testing.T) {
		got, err := d.Download(t.Context(), Resource{URL: f.URL + "/mod/resource/view.php?id=11", Folder: "Réseaux_L3", Kind: KindResource})
		require.NoError(t, err)
		assert.True(t, got.Skipped)
	})

	t.Run("redirect to file", func(t *testing.T) {
		got, err := d.Download(t.Context(), Resource{URL: f.URL + "/mod/resource/redirect.php?id=21", Folder: "Réseaux_L3", Kind: KindResource})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("Réseaux_L3", "notes.txt"), got.File)
		assert.FileExists(t, filepath.Join(store.Root(), got.File))
	})

	t.Run("html resource gets a markdown stub", func(t *testing.T) {
		got, err := d.Download(t.Context(), Resource{URL: f.URL + "/mod/resource/view.php?id=22", Folder: "Réseaux_L3", Kind: KindResource})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("Réseaux_L3", "Annexe_réseau.html"), got.File)

		md, err := os.ReadFile(filepath.Join(store.Root(), "Réseaux_L3", "Annexe_réseau.md"))
		require.NoError(t, err)
		assert.Equal(t, "# Annexe réseau\n\n[Voir la ressource HTML](Annexe_réseau.html)\n", string(md))
	})

	t.Run("external url becomes a shortcut", func(t *testing.T) {
		got, err := d.Download(t.Context(), Resource{URL: f.URL + "/mod/url/view.php?id=15", Folder: "Réseaux_L3", Kind: KindURL})
		require.NoError(t, err)
		assert.True(t, got.Link)
		assert.Equal(t, "https://example.org/docs", got.FinalURL)
		assert.Equal(t, filepath.Join("Réseaux_L3", "LIEN_Lien.url"), got.File)

		data, err := os.ReadFile(filepath.Join(store.Root(), got.File))
		require.NoError(t, err)
		assert.Equal(t, "[InternetShortcut]\nURL=https://example.org/docs\n", string(data))
	})

	t.Run("crawled page is reported as is", func(t *testing.T) {
		got, err := d.Download(t.Context(), Resource{URL: f.URL + "/mod/page/view.php?id=16", Folder: "Réseaux_L3/Consignes", Kind: KindPage, File: "Consignes.html"})
		require.NoError(t, err)
		assert.True(t, got.Skipped)
		assert.Equal(t, filepath.Join("Réseaux_L3", "Consignes", "Consignes.html"), got.File)
	})
}

func TestDownloadWritesSidecar(t *testing.T) {
	f := newResourceSite(t)
	store := newTestStore(t)
	d := NewDownloader(loggedIn(t, f), store, extractor.NewEngine(extractor.DefaultEngineConfig()))

	got, err := d.Download(t.Context(), Resource{URL: f.URL + "/mod/resource/view.php?id=22", Folder: "cours", Kind: KindResource})
	require.NoError(t, err)
	require.NotEmpty(t, got.Sidecar)

	text, err := os.ReadFile(filepath.Join(store.Root(), got.Sidecar))
	require.NoError(t, err)
	assert.Contains(t, string(text), "Contenu HTML")
}

func TestDownloadMissingFile(t *testing.T) {
	f := newResourceSite(t)
	d := NewDownloader(loggedIn(t, f), newTestStore(t), nil)

	_, err := d.Download(t.Context(), Resource{URL: f.URL + "/pluginfile.php/404/absent.pdf", Folder: "cours", Kind: KindFile})
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}
