package quiz

import (
	"strings"
	"unicode/utf8"
)

// Segmenter splits a string holding several concatenated answer options.
type Segmenter struct {
	rules *Rules
}

// NewSegmenter creates a segmenter using rules.
func NewSegmenter(rules *Rules) *Segmenter {
	return &Segmenter{rules: rules}
}

// Split applies the delimiter cascade and repairs the resulting fragments.
// The first delimiter producing more than one non-empty part wins. Text with
// no delimiter is returned whole; it is never split on capitalization.
//
// A non-empty input never yields an empty result: when repair discards
// every part, the trimmed input is returned as the only option.
func (s *Segmenter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	parts := []string{text}
	for _, re := range s.rules.delimiters {
		if split := nonEmpty(re.Split(text, -1)); len(split) > 1 {
			parts = split
			break
		}
	}

	repaired := s.repair(parts)
	if len(repaired) == 0 {
		return []string{text}
	}
	return repaired
}

// repair drops junk and symbol-only parts, folds short fragments into a
// neighbour, then deduplicates.
func (s *Segmenter) repair(parts []string) []string {
	raw := append([]string(nil), parts...)
	var out []string

	for i := 0; i < len(raw); i++ {
		p := strings.TrimSpace(raw[i])
		if p == "" || s.rules.IsJunk(p) || isSymbolic(p) {
			continue
		}
		if s.rules.IsShort(p) {
			switch {
			case len(out) > 0:
				out[len(out)-1] += " " + p
			case i+1 < len(raw):
				raw[i+1] = p + " " + strings.TrimSpace(raw[i+1])
			default:
				out = append(out, p)
			}
			continue
		}
		out = append(out, p)
	}

	seen := make(map[string]struct{}, len(out))
	final := out[:0]
	for _, p := range out {
		p = strings.TrimSpace(p)
		if _, dup := seen[p]; dup {
			continue
		}
		if utf8.RuneCountInString(p) <= 1 && !s.rules.IsAcronym(p) {
			continue
		}
		seen[p] = struct{}{}
		final = append(final, p)
	}
	return final
}

func nonEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
