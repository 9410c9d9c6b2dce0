package moodle

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Réseaux L3", "Réseaux_L3"},
		{"  TD 1 / corrigé  ", "TD_1___corrigé"},
		{"rapport-final_v2.pdf", "rapport-final_v2.pdf"},
		{"Quiz: chapitre 3?", "Quiz__chapitre_3_"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeName(tt.in))
		})
	}
}

func TestCleanFilename(t *testing.T) {
	header := func(kv ...string) http.Header {
		h := http.Header{}
		for i := 0; i+1 < len(kv); i += 2 {
			h.Set(kv[i], kv[i+1])
		}
		return h
	}

	tests := []struct {
		name   string
		url    string
		header http.Header
		title  string
		want   string
	}{
		{
			name: "basename",
			url:  "https://m.example/pluginfile.php/5/mod_resource/content/1/cours1.pdf?forcedownload=1",
			want: "cours1.pdf",
		},
		{
			name: "escaped basename",
			url:  "https://m.example/pluginfile.php/5/TD%20r%C3%A9seau.docx",
			want: "TD_réseau.docx",
		},
		{
			name:   "content disposition wins",
			url:    "https://m.example/mod/resource/view.php?id=11",
			header: header("Content-Disposition", `attachment; filename="Chapitre 2.pdf"`),
			want:   "Chapitre_2.pdf",
		},
		{
			name:   "title with content type",
			url:    "https://m.example/mod/resource/view.php?id=11",
			header: header("Content-Type", "application/pdf"),
			title:  "Cours 1",
			want:   "Cours_1.pdf",
		},
		{
			name:   "id fallback",
			url:    "https://m.example/mod/page/view.php?id=42",
			header: header("Content-Type", "text/html; charset=utf-8"),
			want:   "page_42.html",
		},
		{
			name: "no header",
			url:  "https://m.example/mod/url/view.php?id=7",
			want: "page_7.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanFilename(tt.url, tt.header, tt.title))
		})
	}
}

func TestCleanFilenameHashFallbackIsStable(t *testing.T) {
	a := CleanFilename("https://example.org/docs", nil, "")
	b := CleanFilename("https://example.org/docs", nil, "")
	c := CleanFilename("https://example.org/other", nil, "")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "file_"))
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(a, "file_"), ".bin"), 12)
}

func TestIsDownloadable(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		want        bool
	}{
		{"application/pdf", "https://m.example/file", true},
		{"video/mp4", "https://m.example/v", true},
		{"text/html; charset=utf-8", "https://example.org/docs", false},
		{"text/html", "https://example.org/export.pdf", true},
		{"", "https://example.org/notes.txt", true},
		{"", "https://example.org/", false},
		{"font/woff2", "https://example.org/f", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType+" "+tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, isDownloadable(tt.contentType, tt.url))
		})
	}
}
