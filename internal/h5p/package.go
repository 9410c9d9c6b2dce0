// Package h5p downloads H5P activities and turns their content into
// Markdown next to the original package.
package h5p

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/maelgoujon/moodle-resource-downloader/internal/moodle"
	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
)

const (
	interactiveBook = "H5P.InteractiveBook"
	itemSeparator   = "\n---\n"
)

var ErrNoContent = errors.New("h5p package has no content/content.json")

// Package is an opened .h5p archive.
type Package struct {
	MainLibrary string
	content     any
	files       []*zip.File
}

// ReadPackage opens an .h5p archive held in memory.
func ReadPackage(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open h5p archive: %w", err)
	}

	pkg := &Package{files: zr.File}
	if raw, err := pkg.read("h5p.json"); err == nil {
		meta, err := decodeJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid h5p.json: %w", err)
		}
		if obj, ok := meta.(*object); ok {
			pkg.MainLibrary = obj.str("mainLibrary")
		}
	}

	raw, err := pkg.read("content/content.json")
	if err != nil {
		return nil, ErrNoContent
	}
	if pkg.content, err = decodeJSON(raw); err != nil {
		return nil, fmt.Errorf("invalid content.json: %w", err)
	}
	return pkg, nil
}

func (p *Package) read(name string) ([]byte, error) {
	for _, f := range p.files {
		if f.Name == name {
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// member finds the archive entry for a content-relative path such as
// images/photo.png.
func (p *Package) member(rel string) *zip.File {
	for _, f := range p.files {
		if strings.HasSuffix(f.Name, "/"+rel) {
			return f
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// renderer writes Markdown and extracted media into one activity folder.
type renderer struct {
	ctx   context.Context
	pkg   *Package
	store storage.Store
	dir   string
}

// Render writes the Markdown rendering of the package into dir. An
// interactive book produces one CHAP_<n>_<title>.md file per chapter, any
// other library a single <title>.md. It returns the written files.
func (p *Package) Render(ctx context.Context, store storage.Store, dir, title string) ([]string, error) {
	r := &renderer{ctx: ctx, pkg: p, store: store, dir: dir}

	if p.MainLibrary == interactiveBook {
		var files []string
		root, _ := p.content.(*object)
		for i, ch := range root.list("chapters") {
			chapter, _ := ch.(*object)
			chapterTitle := chapter.str("title")
			if chapterTitle == "" {
				chapterTitle = fmt.Sprintf("Chapitre %d", i+1)
			}
			lines := []string{"# " + chapterTitle + "\n"}
			for _, item := range chapter.obj("params").list("content") {
				lines = append(lines, r.render(item)...)
			}
			name := fmt.Sprintf("CHAP_%d_%s.md", i+1, moodle.SafeName(chapterTitle))
			if err := r.write(name, lines); err != nil {
				return files, err
			}
			files = append(files, filepath.Join(dir, name))
		}
		return files, nil
	}

	lines := append([]string{"# " + title + "\n"}, r.render(p.content)...)
	name := moodle.SafeName(title) + ".md"
	if err := r.write(name, lines); err != nil {
		return nil, err
	}
	return []string{filepath.Join(dir, name)}, nil
}

func (r *renderer) write(name string, lines []string) error {
	return r.store.WriteFile(r.ctx, filepath.Join(r.dir, name), []byte(strings.Join(lines, "\n")))
}

// render turns one content node into Markdown lines. The text, image or
// video of a node is followed by a separator, then every nested value is
// visited.
func (r *renderer) render(node any) []string {
	switch n := node.(type) {
	case []any:
		var lines []string
		for _, child := range n {
			lines = append(lines, r.render(child)...)
		}
		return lines
	case *object:
		return r.renderObject(n)
	}
	return nil
}

func (r *renderer) renderObject(item *object) []string {
	var lines []string
	library, _, _ := strings.Cut(item.str("library"), " ")
	params := item.obj("params")

	if text := params.str("text"); text != "" {
		lines = append(lines, htmlToText(text))
	}

	switch library {
	case "H5P.Image":
		if rel := params.obj("file").str("path"); rel != "" {
			if name, ok := r.extract(rel); ok {
				alt := params.str("alt")
				if alt == "" {
					alt = name
				}
				lines = append(lines, fmt.Sprintf("![%s](%s)", alt, name))
			}
		}
	case "H5P.Video":
		if sources := params.list("sources"); len(sources) > 0 {
			src, _ := sources[0].(*object)
			if rel := src.str("path"); strings.HasPrefix(rel, "http") {
				lines = append(lines, fmt.Sprintf("[Vidéo externe](%s)", rel))
			} else if rel != "" {
				if name, ok := r.extract(rel); ok {
					lines = append(lines, fmt.Sprintf("[Vidéo locale](%s)", name))
				}
			}
		}
	}

	if len(lines) > 0 {
		lines = append(lines, itemSeparator)
	}

	for _, key := range item.keys {
		if key == "params" {
			continue
		}
		lines = append(lines, r.render(item.values[key])...)
	}
	if params != nil {
		for _, key := range params.keys {
			lines = append(lines, r.render(params.values[key])...)
		}
	}
	return lines
}

// extract copies an archive member next to the Markdown and returns its
// base name.
func (r *renderer) extract(rel string) (string, bool) {
	f := r.pkg.member(rel)
	if f == nil {
		log.Debug().Str("path", rel).Msg("H5P media not found in archive")
		return "", false
	}
	name := path.Base(rel)
	dest := filepath.Join(r.dir, name)
	if r.store.Exists(dest) {
		return name, true
	}

	rc, err := f.Open()
	if err != nil {
		log.Warn().Err(err).Str("path", rel).Msg("Failed to open H5P media")
		return "", false
	}
	defer rc.Close()
	if _, err := r.store.WriteStream(r.ctx, dest, rc); err != nil {
		log.Warn().Err(err).Str("file", dest).Msg("Failed to extract H5P media")
		return "", false
	}
	return name, true
}

// htmlToText joins the text nodes of an HTML fragment with newlines.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(textNodes(doc.Selection), "\n")
}

func textNodes(s *goquery.Selection) []string {
	var parts []string
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			if t := strings.TrimSpace(c.Text()); t != "" {
				parts = append(parts, t)
			}
		case "script", "style", "#comment":
		default:
			parts = append(parts, textNodes(c)...)
		}
	})
	return parts
}
