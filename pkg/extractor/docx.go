package extractor

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
	paragraphEnd = regexp.MustCompile(`</w:p>`)
)

// DOCXExtractor handles DOCX file extraction
type DOCXExtractor struct{}

// Extract returns the paragraph text of a DOCX document.
func (d *DOCXExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type": "docx",
		"size": fmt.Sprintf("%d", len(content)),
	}

	// DOCX files are ZIP archives.
	if len(content) < 4 || content[0] != 0x50 || content[1] != 0x4B {
		return "", metadata, &ExtractionError{Kind: "docx", Message: "not a valid DOCX file - missing ZIP signature"}
	}

	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", metadata, &ExtractionError{Kind: "docx", Message: fmt.Sprintf("failed to parse DOCX: %v", err)}
	}

	raw := doc.Editable().GetContent()
	raw = paragraphEnd.ReplaceAllString(raw, "\n")
	text := xmlTag.ReplaceAllString(raw, "")
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'").Replace(text)

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	text = strings.Join(lines, "\n")

	metadata["characters"] = fmt.Sprintf("%d", len(text))
	metadata["word_count"] = fmt.Sprintf("%d", len(strings.Fields(text)))

	if text == "" {
		return "", metadata, &ExtractionError{Kind: "docx", Message: "DOCX document contains no extractable text"}
	}
	return text, metadata, nil
}
