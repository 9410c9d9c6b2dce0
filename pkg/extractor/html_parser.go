package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// MoodleHTMLExtractor reads the visible text of a saved Moodle page, leaving
// out navigation chrome.
type MoodleHTMLExtractor struct {
	noise []string
}

func NewMoodleHTMLExtractor() *MoodleHTMLExtractor {
	return &MoodleHTMLExtractor{
		noise: []string{
			"Aller au contenu principal",
			"Skip to main content",
			"Passer au contenu principal",
			"Fermer le tiroir de cours",
			"Close course index",
			"Ouvrir le tiroir de cours",
			"Open course index",
			"Marquer comme terminé",
			"Mark as done",
		},
	}
}

func (h *MoodleHTMLExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var (
		b     strings.Builder
		title string
	)
	walkText(doc, &b, &title)
	text := h.cleanup(b.String())

	metadata := map[string]string{
		"type":       "html",
		"characters": fmt.Sprintf("%d", len(text)),
		"title":      title,
	}
	return text, metadata, nil
}

func walkText(n *html.Node, b *strings.Builder, title *string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "nav", "header", "footer", "aside", "form":
			return
		case "title":
			if *title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				*title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			if n.Parent != nil && isBlockElement(n.Parent.Data) {
				fmt.Fprintf(b, "\n%s\n", text)
			} else {
				fmt.Fprintf(b, " %s ", text)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b, title)
	}
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "blockquote",
		"article", "section", "main", "pre", "td", "th", "dt", "dd", "label":
		return true
	}
	return false
}

func (h *MoodleHTMLExtractor) cleanup(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || h.isNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (h *MoodleHTMLExtractor) isNoise(line string) bool {
	for _, n := range h.noise {
		if strings.EqualFold(line, n) {
			return true
		}
	}
	return false
}
