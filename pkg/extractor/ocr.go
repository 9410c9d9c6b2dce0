//go:build ocr

package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCRExtractor reads text from images with Tesseract.
type OCRExtractor struct {
	Language             string // Tesseract language codes, e.g. "fra+eng"
	PageSegmentationMode gosseract.PageSegMode
}

// NewOCRExtractor creates a new OCR extractor with default settings
func NewOCRExtractor() *OCRExtractor {
	return &OCRExtractor{
		Language:             "fra+eng",
		PageSegmentationMode: gosseract.PSM_AUTO,
	}
}

// Extract runs OCR on image content.
func (o *OCRExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type":     "ocr",
		"size":     fmt.Sprintf("%d", len(content)),
		"language": o.Language,
		"engine":   "tesseract",
	}

	if len(content) == 0 {
		return "", metadata, &ExtractionError{Kind: "ocr", Message: "no image content provided for OCR"}
	}

	client := gosseract.NewClient()
	defer client.Close()

	// gosseract takes "+"-joined codes as separate languages.
	if err := client.SetLanguage(strings.Split(o.Language, "+")...); err != nil {
		return "", metadata, &ExtractionError{Kind: "ocr", Message: fmt.Sprintf("failed to set OCR language %q: %v", o.Language, err)}
	}
	if err := client.SetPageSegMode(o.PageSegmentationMode); err != nil {
		return "", metadata, &ExtractionError{Kind: "ocr", Message: fmt.Sprintf("failed to set page segmentation mode: %v", err)}
	}
	if err := client.SetImageFromBytes(content); err != nil {
		return "", metadata, &ExtractionError{Kind: "ocr", Message: fmt.Sprintf("failed to set OCR image data: %v", err)}
	}

	text, err := client.Text()
	if err != nil {
		return "", metadata, &ExtractionError{Kind: "ocr", Message: fmt.Sprintf("OCR text extraction failed: %v", err)}
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	metadata["characters"] = fmt.Sprintf("%d", len(text))

	if text == "" {
		return "", metadata, &ExtractionError{Kind: "ocr", Message: "OCR could not extract any text from the image"}
	}
	return text, metadata, nil
}
