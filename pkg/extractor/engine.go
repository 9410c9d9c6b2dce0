// Package extractor turns downloaded course files into plain text sidecars
// so PDFs, Word documents, saved pages and scanned images can be searched
// next to the originals.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrUnsupported is returned for files no extractor handles.
var ErrUnsupported = errors.New("unsupported file type")

// SidecarSuffix is appended to a file's name to form its text sidecar.
const SidecarSuffix = ".txt"

// Extractor returns the text of a document and metadata about it.
type Extractor interface {
	Extract(ctx context.Context, content []byte) (string, map[string]string, error)
}

// Engine dispatches on file extension.
type Engine struct {
	extractors map[string]Extractor
	maxSize    int64
}

// EngineConfig tunes an Engine.
type EngineConfig struct {
	OCRLanguage string `mapstructure:"ocr_language"`
	MaxPDFPages int    `mapstructure:"max_pdf_pages"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

// DefaultEngineConfig suits French and English course material.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		OCRLanguage: "fra+eng",
		MaxPDFPages: 1000,
		MaxFileSize: 200 * 1024 * 1024,
	}
}

func NewEngine(cfg EngineConfig) *Engine {
	ocr := NewOCRExtractor()
	if cfg.OCRLanguage != "" {
		ocr.Language = cfg.OCRLanguage
	}
	htmlx := NewMoodleHTMLExtractor()
	return &Engine{
		maxSize: cfg.MaxFileSize,
		extractors: map[string]Extractor{
			"txt":  &TextExtractor{},
			"md":   &TextExtractor{},
			"csv":  &TextExtractor{},
			"html": htmlx,
			"htm":  htmlx,
			"pdf":  &PDFExtractor{MaxPages: cfg.MaxPDFPages},
			"docx": &DOCXExtractor{},
			"png":  ocr,
			"jpg":  ocr,
			"jpeg": ocr,
			"tiff": ocr,
			"bmp":  ocr,
			"gif":  ocr,
		},
	}
}

// Kind returns the lower-cased extension of name without its dot.
func Kind(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// Supports reports whether kind has an extractor.
func (e *Engine) Supports(kind string) bool {
	_, ok := e.extractors[strings.ToLower(kind)]
	return ok
}

func (e *Engine) Extract(ctx context.Context, content []byte, kind string) (string, map[string]string, error) {
	extractor, ok := e.extractors[strings.ToLower(kind)]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupported, kind)
	}
	return extractor.Extract(ctx, content)
}

// WriteSidecar extracts the text of path and writes it to path+".txt". An
// existing sidecar is left untouched. It returns the sidecar path.
func (e *Engine) WriteSidecar(ctx context.Context, path string) (string, error) {
	kind := Kind(path)
	if kind == "txt" || !e.Supports(kind) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}

	sidecar := path + SidecarSuffix
	if _, err := os.Stat(sidecar); err == nil {
		return sidecar, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if e.maxSize > 0 && info.Size() > e.maxSize {
		return "", &ExtractionError{Kind: kind, Message: fmt.Sprintf("file too large for text extraction: %d bytes", info.Size())}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, metadata, err := e.Extract(ctx, content, kind)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(sidecar, []byte(text+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write sidecar: %w", err)
	}

	log.Debug().
		Str("file", path).
		Str("type", metadata["type"]).
		Str("characters", metadata["characters"]).
		Msg("Text sidecar written")
	return sidecar, nil
}

// TextExtractor handles plain text files
type TextExtractor struct{}

func (t *TextExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	metadata := map[string]string{
		"type":       "text",
		"characters": fmt.Sprintf("%d", len(text)),
		"lines":      fmt.Sprintf("%d", bytes.Count(content, []byte("\n"))+1),
	}
	return text, metadata, nil
}
