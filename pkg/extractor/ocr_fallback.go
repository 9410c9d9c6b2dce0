//go:build !ocr

package extractor

import (
	"context"
	"fmt"
)

// OCRExtractor stands in when the binary is built without the ocr tag.
type OCRExtractor struct {
	Language string
}

func NewOCRExtractor() *OCRExtractor {
	return &OCRExtractor{Language: "fra+eng"}
}

// Extract always fails; build with -tags ocr and Tesseract installed.
func (o *OCRExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type":     "ocr",
		"size":     fmt.Sprintf("%d", len(content)),
		"language": o.Language,
		"engine":   "tesseract_not_available",
	}
	return "", metadata, &ExtractionError{
		Kind:    "ocr",
		Message: "image text extraction requires building with -tags ocr and tesseract-ocr installed",
	}
}
