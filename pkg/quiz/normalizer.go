package quiz

import (
	"regexp"
	"strings"
)

var ordinalPrefix = regexp.MustCompile(`^(?:\d+\.\s+)+`)

// Normalize collapses whitespace runs, strips leading "1. " style ordinals
// and trims. Applying it twice gives the same result as applying it once.
func Normalize(s string) string {
	s = collapseSpace(s)
	s = ordinalPrefix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// NormalizerConfig controls the output of a Normalizer.
type NormalizerConfig struct {
	// LowercaseQuestions emits the lower-cased merge key as question text
	// instead of the first-seen casing.
	LowercaseQuestions bool `yaml:"lowercase_questions" json:"lowercase_questions"`
}

// Normalizer merges the raw records of every page of one attempt.
type Normalizer struct {
	rules  *Rules
	config NormalizerConfig
}

// NewNormalizer creates a normalizer using rules.
func NewNormalizer(rules *Rules, config NormalizerConfig) *Normalizer {
	return &Normalizer{rules: rules, config: config}
}

// Normalize returns one record per distinct question, keyed on the lower-cased
// normalized text. The first occurrence fixes the position; later ones only
// append answers not seen yet, in their own order.
func (n *Normalizer) Normalize(records []QuestionRecord) []QuestionRecord {
	index := make(map[string]int, len(records))
	seen := make([]map[string]struct{}, 0, len(records))
	out := make([]QuestionRecord, 0, len(records))

	for _, rec := range records {
		q := Normalize(rec.Question)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)

		i, ok := index[key]
		if !ok {
			if n.config.LowercaseQuestions {
				q = key
			}
			i = len(out)
			index[key] = i
			out = append(out, QuestionRecord{Question: q, Answers: []string{}})
			seen = append(seen, make(map[string]struct{}))
		}

		for _, a := range rec.Answers {
			a = Normalize(a)
			if a == "" || n.rules.IsJunk(a) || n.rules.IsShort(a) {
				continue
			}
			if _, dup := seen[i][a]; dup {
				continue
			}
			seen[i][a] = struct{}{}
			out[i].Answers = append(out[i].Answers, a)
		}
	}
	return out
}
