package quiz

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Extractor turns one rendered quiz page into raw question records. It does
// not normalize or deduplicate across records.
type Extractor struct {
	rules     *Rules
	segmenter *Segmenter
	answers   []answerStrategy
}

// answerStrategy finds answer candidates in a block. Strategies are tried in
// order until one yields at least one candidate.
type answerStrategy struct {
	name string
	find func(b *block) []string
}

// block is one question container and the text derived from it.
type block struct {
	sel     *goquery.Selection
	prompt  *goquery.Selection
	heading string
	raw     string
	before  string
	tail    string
	hasTail bool
}

// NewExtractor creates an extractor using rules.
func NewExtractor(rules *Rules) *Extractor {
	e := &Extractor{rules: rules, segmenter: NewSegmenter(rules)}
	e.answers = []answerStrategy{
		{name: "input_labels", find: e.inputLabels},
		{name: "list_items", find: e.listItems},
		{name: "answer_classes", find: e.answerClasses},
		{name: "marker_tail", find: e.markerTail},
	}
	return e
}

// ExtractHTML parses r and extracts its question records.
func (e *Extractor) ExtractHTML(r io.Reader) ([]QuestionRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return e.Extract(doc.Selection), nil
}

// Extract returns one record per question block under root, in document
// order. Blocks without a usable question text are skipped.
func (e *Extractor) Extract(root *goquery.Selection) []QuestionRecord {
	var records []QuestionRecord
	for _, sel := range e.blocks(root) {
		if rec, ok := e.extractBlock(sel); ok {
			records = append(records, rec)
		}
	}
	return records
}

// HasQuestions reports whether root contains at least one question block.
func (e *Extractor) HasQuestions(root *goquery.Selection) bool {
	return len(e.blocks(root)) > 0
}

// blocks walks root top-down. A matching container is one question unless
// it wraps several nested containers that each hold a prompt, in which case
// the walk continues inside it.
func (e *Extractor) blocks(root *goquery.Selection) []*goquery.Selection {
	var out []*goquery.Selection
	if e.isBlock(root) && e.questionCount(root) <= 1 {
		return append(out, root)
	}

	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Children().Each(func(_ int, c *goquery.Selection) {
			if e.isBlock(c) && e.questionCount(c) <= 1 {
				out = append(out, c)
				return
			}
			walk(c)
		})
	}
	walk(root)
	return out
}

func (e *Extractor) isBlock(s *goquery.Selection) bool {
	if goquery.NodeName(s) != "div" {
		return false
	}
	class, _ := s.Attr("class")
	role, _ := s.Attr("role")
	return matchesClass(e.rules.block, class) || matchesClass(e.rules.block, role)
}

// questionCount counts the outermost nested blocks of s holding a prompt.
func (e *Extractor) questionCount(s *goquery.Selection) int {
	n := 0
	var walk func(p *goquery.Selection)
	walk = func(p *goquery.Selection) {
		p.Children().Each(func(_ int, c *goquery.Selection) {
			if e.isBlock(c) {
				if e.promptContainer(c) != nil {
					n++
				}
				return
			}
			walk(c)
		})
	}
	walk(s)
	return n
}

// promptContainer returns the first innermost descendant whose class matches
// the prompt pattern.
func (e *Extractor) promptContainer(s *goquery.Selection) *goquery.Selection {
	isPrompt := func(_ int, c *goquery.Selection) bool {
		class, _ := c.Attr("class")
		return matchesClass(e.rules.prompt, class)
	}

	var found *goquery.Selection
	s.Find("[class]").FilterFunction(isPrompt).EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if c.Find("[class]").FilterFunction(isPrompt).Length() > 0 {
			return true
		}
		found = c
		return false
	})
	return found
}

func (e *Extractor) newBlock(sel *goquery.Selection) *block {
	b := &block{sel: sel, prompt: e.promptContainer(sel)}
	if h := sel.Find("h3, h4, legend").First(); h.Length() > 0 {
		b.heading = collapseSpace(e.rules.stripPagination(nodeText(h, " ")))
	}

	switch {
	case b.prompt != nil:
		b.raw = nodeText(b.prompt, "\n")
	case b.heading != "":
		b.raw = b.heading
	default:
		b.raw = nodeText(sel, "\n")
	}
	b.raw = e.rules.stripPagination(b.raw)
	b.before = b.raw

	if m, loc, ok := e.rules.findMarker(b.raw); ok {
		b.before = b.raw[:loc[0]]
		b.tail, b.hasTail = markerTail(b.raw, m, loc), true
		return b
	}

	// The marker often sits beside the prompt rather than inside it.
	if b.prompt != nil {
		full := e.rules.stripPagination(nodeText(sel, "\n"))
		if m, loc, ok := e.rules.findMarker(full); ok {
			b.tail, b.hasTail = markerTail(full, m, loc), true
		}
	}
	return b
}

func markerTail(s string, m compiledMarker, loc []int) string {
	if m.strip {
		return strings.TrimSpace(s[loc[1]:])
	}
	return strings.TrimSpace(s[loc[0]:])
}

func (e *Extractor) extractBlock(sel *goquery.Selection) (QuestionRecord, bool) {
	b := e.newBlock(sel)
	question := e.questionText(b)

	var candidates []string
	for _, st := range e.answers {
		if candidates = st.find(b); len(candidates) > 0 {
			break
		}
	}
	if len(candidates) == 1 {
		if parts := e.segmenter.Split(candidates[0]); len(parts) > 1 {
			candidates = parts
		}
	}
	answers := e.cleanAnswers(candidates)

	if len(answers) == 0 {
		answers = e.rules.trueFalseOptions(b.raw)
	}

	// The question stays as resolved above; only the lines after the first
	// become answers.
	if len(answers) == 0 && len(lines(b.raw)) > 1 {
		var rest []string
		if before := lines(b.before); len(before) > 0 {
			rest = before[1:]
		}
		rest = append(rest, lines(b.tail)...)
		var long []string
		for _, l := range rest {
			if utf8.RuneCountInString(l) > 2 {
				long = append(long, l)
			}
		}
		answers = e.cleanAnswers(long)
	}

	if question == "" || e.rules.IsJunk(question) {
		return QuestionRecord{}, false
	}
	if answers == nil {
		answers = []string{}
	}
	return QuestionRecord{Question: question, Answers: answers}, true
}

// questionText prefers the prompt container, then the heading, then the
// first line of the block text.
func (e *Extractor) questionText(b *block) string {
	if b.prompt != nil {
		if q := collapseSpace(b.before); q != "" {
			return q
		}
	}
	if b.heading != "" {
		if _, loc, ok := e.rules.findMarker(b.heading); ok {
			if q := collapseSpace(b.heading[:loc[0]]); q != "" {
				return q
			}
		} else {
			return b.heading
		}
	}
	if ls := lines(b.before); len(ls) > 0 {
		return collapseSpace(ls[0])
	}
	return ""
}

func (e *Extractor) inputLabels(b *block) []string {
	var out []string
	b.sel.Find("input").Each(func(_ int, in *goquery.Selection) {
		t, _ := in.Attr("type")
		if t = strings.ToLower(t); t != "radio" && t != "checkbox" {
			return
		}
		if label := inputLabel(b.sel, in); label != "" {
			out = append(out, label)
		}
	})
	return out
}

// inputLabel resolves the label of a choice control through for/id linkage,
// aria-labelledby, a wrapping label, then the text that follows it.
func inputLabel(scope, in *goquery.Selection) string {
	if id, _ := in.Attr("id"); id != "" {
		l := scope.Find("label").FilterFunction(func(_ int, l *goquery.Selection) bool {
			f, _ := l.Attr("for")
			return f == id
		}).First()
		if t := rawText(l); t != "" {
			return t
		}
	}
	if ids, _ := in.Attr("aria-labelledby"); ids != "" {
		var parts []string
		for _, id := range strings.Fields(ids) {
			el := scope.Find("[id]").FilterFunction(func(_ int, c *goquery.Selection) bool {
				v, _ := c.Attr("id")
				return v == id
			}).First()
			if t := rawText(el); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	if l := in.Closest("label"); l.Length() > 0 {
		if t := rawText(l); t != "" {
			return t
		}
	}
	if n := in.Get(0); n != nil {
		return siblingText(n)
	}
	return ""
}

func (e *Extractor) listItems(b *block) []string {
	var out []string
	b.sel.Find("li").Each(func(_ int, li *goquery.Selection) {
		if t := rawText(li); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// answerClasses collects the innermost elements whose class matches the
// answer pattern.
func (e *Extractor) answerClasses(b *block) []string {
	isAnswer := func(_ int, c *goquery.Selection) bool {
		class, _ := c.Attr("class")
		return matchesClass(e.rules.answer, class)
	}
	var out []string
	b.sel.Find("[class]").FilterFunction(isAnswer).Each(func(_ int, c *goquery.Selection) {
		if c.Find("[class]").FilterFunction(isAnswer).Length() > 0 {
			return
		}
		if t := rawText(c); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func (e *Extractor) markerTail(b *block) []string {
	if !b.hasTail {
		return nil
	}
	return e.segmenter.Split(b.tail)
}

// cleanAnswers removes embedded junk phrases, then drops empty, junk and
// short fragments and duplicates.
func (e *Extractor) cleanAnswers(candidates []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		a := collapseSpace(e.rules.StripJunkPhrases(c))
		if a == "" || e.rules.IsJunk(a) || e.rules.IsShort(a) {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
