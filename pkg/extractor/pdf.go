package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractionError is a non-retryable failure to read a document.
type ExtractionError struct {
	Kind    string
	Message string
}

func (e *ExtractionError) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return e.Kind + ": " + e.Message
}

// PDFExtractor handles PDF file extraction
type PDFExtractor struct {
	MaxPages int
}

// Extract reads the plain text of every page, up to MaxPages.
func (p *PDFExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type": "pdf",
		"size": fmt.Sprintf("%d", len(content)),
	}

	if len(content) < 4 || string(content[:4]) != "%PDF" {
		return "", metadata, &ExtractionError{
			Kind:    "pdf",
			Message: fmt.Sprintf("not a valid PDF file - content starts with: %q", string(content[:min(20, len(content))])),
		}
	}

	doc, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", metadata, &ExtractionError{Kind: "pdf", Message: fmt.Sprintf("failed to parse PDF: %v", err)}
	}

	var (
		b         strings.Builder
		extracted int
	)
	for i := 1; i <= doc.NumPage(); i++ {
		if p.MaxPages > 0 && i > p.MaxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", metadata, err
		}

		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		extracted++
		b.WriteString(pageText)
		b.WriteString("\n\n")
	}

	text := strings.TrimSpace(b.String())
	metadata["pages"] = fmt.Sprintf("%d", doc.NumPage())
	metadata["extracted_pages"] = fmt.Sprintf("%d", extracted)
	metadata["characters"] = fmt.Sprintf("%d", len(text))

	if text == "" {
		// Scanned course handouts have no text layer.
		return "", metadata, &ExtractionError{Kind: "pdf", Message: "PDF contains no extractable text"}
	}
	return text, metadata, nil
}
