package moodle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/extractor"
)

// maxHTMLSize bounds the HTML bodies read into memory to find titles and
// final URLs.
const maxHTMLSize = 32 << 20

// Download describes the outcome for one resource. File is relative to the
// output root.
type Download struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url,omitempty"`
	File     string `json:"file"`
	Link     bool   `json:"link,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Sidecar  string `json:"sidecar,omitempty"`
}

// Downloader fetches course resources into the output tree.
type Downloader struct {
	client *Client
	store  storage.Store
	engine *extractor.Engine
}

// NewDownloader creates a downloader. A nil engine disables text sidecars.
func NewDownloader(client *Client, store storage.Store, engine *extractor.Engine) *Downloader {
	return &Downloader{client: client, store: store, engine: engine}
}

// Download saves one resource. Pages saved during the crawl are reported
// as is. External mod/url targets that are not files become InternetShortcut
// files named LIEN_<name>.url. Existing files are left untouched.
func (d *Downloader) Download(ctx context.Context, r Resource) (*Download, error) {
	if r.Kind == KindPage && r.File != "" {
		return &Download{URL: r.URL, File: filepath.Join(r.Folder, r.File), Skipped: true}, nil
	}

	resp, err := d.client.Open(ctx, r.URL)
	if err != nil {
		return nil, err
	}

	// Activity wrappers are HTML pages pointing at the real target.
	if isHTMLResponse(resp) && (r.Kind == KindResource || r.Kind == KindURL) {
		page, err := readPage(resp)
		if err != nil {
			return nil, err
		}
		final, err := FinalURL(page, page.URL.String())
		switch {
		case err == nil && StripFragment(final) != StripFragment(page.URL.String()):
			if r.Kind == KindURL && !IsFileURL(final) && !sameHost(final, page.URL.String()) {
				return d.writeShortcut(ctx, r, final, page.Title())
			}
			if resp, err = d.client.Open(ctx, final); err != nil {
				return nil, err
			}
		case r.Kind == KindURL:
			return d.writeShortcut(ctx, r, page.URL.String(), page.Title())
		default:
			return d.save(ctx, r, page.URL.String(), page.Header, io.NopCloser(bytes.NewReader(page.Body)), page)
		}
	}

	finalURL := resp.Request.URL.String()
	if r.Kind == KindURL && !isDownloadable(resp.Header.Get("Content-Type"), finalURL) {
		resp.Body.Close()
		return d.writeShortcut(ctx, r, finalURL, "")
	}

	if isHTMLResponse(resp) {
		page, err := readPage(resp)
		if err != nil {
			return nil, err
		}
		return d.save(ctx, r, finalURL, page.Header, io.NopCloser(bytes.NewReader(page.Body)), page)
	}
	return d.save(ctx, r, finalURL, resp.Header, resp.Body, nil)
}

func (d *Downloader) save(ctx context.Context, r Resource, finalURL string, header http.Header, body io.ReadCloser, page *Page) (*Download, error) {
	defer body.Close()

	title := ""
	if page != nil {
		title = page.Title()
	}
	var name string
	if page != nil && title != "" {
		name = SafeName(title) + ".html"
	} else {
		name = CleanFilename(finalURL, header, "")
	}
	path := filepath.Join(r.Folder, name)
	result := &Download{URL: r.URL, FinalURL: finalURL, File: path}

	if d.store.Exists(path) {
		log.Info().Str("file", path).Msg("File already downloaded")
		result.Skipped = true
		return result, nil
	}

	log.Info().Str("url", finalURL).Str("file", path).Msg("Downloading")
	n, err := d.store.WriteStream(ctx, path, body)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("file", path).Int64("bytes", n).Msg("Download complete")

	if page != nil || strings.HasSuffix(strings.ToLower(name), ".html") {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		md := fmt.Sprintf("# %s\n\n[Voir la ressource HTML](%s)\n", strings.ReplaceAll(stem, "_", " "), name)
		mdPath := filepath.Join(r.Folder, stem+".md")
		if err := d.store.WriteFile(ctx, mdPath, []byte(md)); err != nil {
			log.Warn().Err(err).Str("file", mdPath).Msg("Failed to write Markdown stub")
		} else {
			log.Info().Str("file", mdPath).Msg("Markdown generated")
		}
	}

	result.Sidecar = d.writeSidecar(ctx, path)
	return result, nil
}

func (d *Downloader) writeSidecar(ctx context.Context, path string) string {
	if d.engine == nil {
		return ""
	}
	kind := extractor.Kind(path)
	if kind == "txt" || !d.engine.Supports(kind) {
		return ""
	}
	sidecar, err := d.engine.WriteSidecar(ctx, filepath.Join(d.store.Root(), path))
	if err != nil {
		if !errors.Is(err, extractor.ErrUnsupported) {
			log.Warn().Err(err).Str("file", path).Msg("Text extraction failed")
		}
		return ""
	}
	rel, err := filepath.Rel(d.store.Root(), sidecar)
	if err != nil {
		return sidecar
	}
	return rel
}

func (d *Downloader) writeShortcut(ctx context.Context, r Resource, target, title string) (*Download, error) {
	name := title
	if name == "" {
		name = CleanFilename(target, nil, "")
	}
	path := filepath.Join(r.Folder, "LIEN_"+SafeName(name)+".url")
	content := fmt.Sprintf("[InternetShortcut]\nURL=%s\n", target)
	if err := d.store.WriteFile(ctx, path, []byte(content)); err != nil {
		return nil, err
	}
	log.Info().Str("url", target).Str("file", path).Msg("External link saved")
	return &Download{URL: r.URL, FinalURL: target, File: path, Link: true}, nil
}

func isHTMLResponse(resp *http.Response) bool {
	ct := mediaType(resp.Header.Get("Content-Type"))
	return ct == "text/html" || ct == "application/xhtml+xml"
}

func readPage(resp *http.Response) (*Page, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", resp.Request.URL, err)
	}
	return &Page{URL: resp.Request.URL, Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func sameHost(a, b string) bool {
	ua, ub := parseURL(a), parseURL(b)
	return ua != nil && ub != nil && strings.EqualFold(ua.Host, ub.Host)
}
