package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  1.  Quelle   est la capitale ? ", "Quelle est la capitale ?"},
		{"1. 2. Nested ordinals", "Nested ordinals"},
		{"12.\tTabbed", "Tabbed"},
		{"3.5 volts", "3.5 volts"},
		{"1.Question", "1.Question"},
		{"2. 1.5 mm gauge", "1.5 mm gauge"},
		{"Plain text", "Plain text"},
		{"\n\t", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Normalize(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, Normalize(got), "normalization must be idempotent")
		})
	}
}

func TestNormalizerMergesPages(t *testing.T) {
	pages := []QuestionRecord{
		{Question: "Q1", Answers: []string{"Alpha", "Beta"}},
		{Question: "q1 ", Answers: []string{"Beta", "Gamma"}},
	}

	t.Run("first seen casing", func(t *testing.T) {
		n := NewNormalizer(DefaultRules(), NormalizerConfig{})
		got := n.Normalize(pages)
		assert.Equal(t, []QuestionRecord{
			{Question: "Q1", Answers: []string{"Alpha", "Beta", "Gamma"}},
		}, got)
	})

	t.Run("lowercase questions", func(t *testing.T) {
		n := NewNormalizer(DefaultRules(), NormalizerConfig{LowercaseQuestions: true})
		got := n.Normalize(pages)
		assert.Equal(t, []QuestionRecord{
			{Question: "q1", Answers: []string{"Alpha", "Beta", "Gamma"}},
		}, got)
	})
}

func TestNormalizerOrderAndFiltering(t *testing.T) {
	n := NewNormalizer(DefaultRules(), NormalizerConfig{})
	got := n.Normalize([]QuestionRecord{
		{Question: "1. Which port does SSH use?", Answers: []string{" 22 tcp ", "Effacer mon choix", "END"}},
		{Question: "   ", Answers: []string{"Orphan answer"}},
		{Question: "Second question", Answers: nil},
		{Question: "which port does  SSH use?", Answers: []string{"443 tcp", "22 tcp", "Marquer la question"}},
		{Question: "Third", Answers: []string{"Alpha", "alpha", "Alpha"}},
	})

	assert.Equal(t, []QuestionRecord{
		{Question: "Which port does SSH use?", Answers: []string{"22 tcp", "443 tcp"}},
		{Question: "Second question", Answers: []string{}},
		{Question: "Third", Answers: []string{"Alpha", "alpha"}},
	}, got)
}

func TestNormalizerAcronymBoundary(t *testing.T) {
	n := NewNormalizer(DefaultRules(), NormalizerConfig{})
	got := n.Normalize([]QuestionRecord{{
		Question: "Boundary",
		Answers:  []string{"A", "b", "AB", "ab", "ABC", "abc", "ABCD", "ABCDE"},
	}})

	assert.Equal(t, []string{"AB", "ABC", "abc", "ABCD", "ABCDE"}, got[0].Answers)
}

// Single letter placeholders fall under the short fragment rule, so the
// merge still happens but contributes no answers.
func TestNormalizerSingleLetterAnswersDropped(t *testing.T) {
	n := NewNormalizer(DefaultRules(), NormalizerConfig{LowercaseQuestions: true})
	got := n.Normalize([]QuestionRecord{
		{Question: "Q1", Answers: []string{"A", "B"}},
		{Question: "q1 ", Answers: []string{"B", "C"}},
	})

	assert.Equal(t, []QuestionRecord{{Question: "q1", Answers: []string{}}}, got)
}

func TestNormalizerJunkNeverSurvives(t *testing.T) {
	rules := DefaultRules()
	n := NewNormalizer(rules, NormalizerConfig{})
	for _, tok := range rules.Source().JunkTokens {
		got := n.Normalize([]QuestionRecord{{Question: "Q", Answers: []string{tok, "Valid answer"}}})
		assert.Equal(t, []string{"Valid answer"}, got[0].Answers, tok)
	}
}
