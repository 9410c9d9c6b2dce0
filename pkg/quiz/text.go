package quiz

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// nodeText renders the text under sel as a browser lays it out: block
// elements and <br> end a line, inline text runs together. The trimmed,
// non-empty lines are joined with sep.
func nodeText(sel *goquery.Selection, sep string) string {
	w := &textWriter{brk: "\n", collapse: true}
	for _, n := range sel.Nodes {
		w.walk(n)
	}
	return strings.Join(lines(w.b.String()), sep)
}

// rawText renders the text under sel on one line, with a space at block and
// <br> boundaries. Line breaks inside text nodes are kept.
func rawText(sel *goquery.Selection) string {
	w := &textWriter{brk: " "}
	for _, n := range sel.Nodes {
		w.walk(n)
	}
	return strings.TrimSpace(w.b.String())
}

// siblingText returns the first non-empty text following n among its
// siblings, stopping at the next form control.
func siblingText(n *html.Node) string {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && (s.Data == "input" || s.Data == "select" || s.Data == "textarea") {
			return ""
		}
		w := &textWriter{brk: " "}
		w.walk(s)
		if t := strings.TrimSpace(w.b.String()); t != "" {
			return t
		}
	}
	return ""
}

// textWriter accumulates text with separators deferred until the next
// non-blank text, so boundaries never double up or trail.
type textWriter struct {
	b        strings.Builder
	brk      string
	collapse bool
	pending  string
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch {
		case n.Data == "script" || n.Data == "style":
			return
		case n.Data == "br":
			w.soft(w.brk)
			return
		}
	}

	block := n.Type == html.ElementNode && isBlockElement(n.Data)
	if block {
		w.soft(w.brk)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.soft(w.brk)
	}
}

func (w *textWriter) text(s string) {
	core := strings.TrimSpace(s)
	if core == "" {
		if s != "" {
			w.soft(" ")
		}
		return
	}
	if strings.IndexFunc(s, unicode.IsSpace) == 0 {
		w.soft(" ")
	}
	if w.pending != "" {
		w.b.WriteString(w.pending)
		w.pending = ""
	}
	if w.collapse {
		core = collapseSpace(core)
	}
	w.b.WriteString(core)
	if strings.TrimRightFunc(s, unicode.IsSpace) != s {
		w.soft(" ")
	}
}

// soft records a separator for the next text. A line break wins over a
// space.
func (w *textWriter) soft(sep string) {
	if w.b.Len() == 0 {
		return
	}
	if w.pending == "" || sep == w.brk {
		w.pending = sep
	}
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li",
		"dl", "dt", "dd", "blockquote", "pre", "table", "tr", "td", "th",
		"article", "section", "main", "header", "footer", "nav", "aside",
		"form", "fieldset", "legend", "figure", "figcaption", "hr", "label":
		return true
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
