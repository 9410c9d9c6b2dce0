package h5p

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageText returns the visible text of an activity page, one text node per
// line, and the distinct texts of its buttons, labels, headings, list items
// and paragraphs.
func PageText(doc *goquery.Selection) (string, []string) {
	text := strings.Join(textNodes(doc), "\n")

	interactions := []string{}
	seen := make(map[string]bool)
	doc.Find("button, label, h1, h2, h3, h4, h5, h6, li, p").Each(func(_ int, s *goquery.Selection) {
		t := strings.Join(textNodes(s), "")
		if t != "" && !seen[t] {
			seen[t] = true
			interactions = append(interactions, t)
		}
	})
	return text, interactions
}
