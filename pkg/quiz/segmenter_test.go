package quiz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmenterSplit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "line breaks",
			input:    "Paris\nLondres\r\nBerlin",
			expected: []string{"Paris", "Londres", "Berlin"},
		},
		{
			name:     "blank lines collapse",
			input:    "Paris\n\n\nLondres",
			expected: []string{"Paris", "Londres"},
		},
		{
			name:     "semicolons",
			input:    "HTTP; FTP; SSH",
			expected: []string{"HTTP", "FTP", "SSH"},
		},
		{
			name:     "double spaces",
			input:    "Option one  Option two",
			expected: []string{"Option one", "Option two"},
		},
		{
			name:     "bullets and pipes",
			input:    "Rouge • Vert | Bleu",
			expected: []string{"Rouge", "Vert", "Bleu"},
		},
		{
			name:     "enumerated list",
			input:    "1) Alpha 2) Beta 3) Gamma",
			expected: []string{"Alpha", "Beta", "Gamma"},
		},
		{
			name:     "no delimiter keeps concatenated capitals",
			input:    "HTTPSFTPSSH",
			expected: []string{"HTTPSFTPSSH"},
		},
		{
			name:     "capitalized phrase is not split",
			input:    "Wireless Private Area Network",
			expected: []string{"Wireless Private Area Network"},
		},
		{
			name:     "short fragment merges backward",
			input:    "Réseau\nà",
			expected: []string{"Réseau à"},
		},
		{
			name:     "short fragment merges forward without predecessor",
			input:    "à\nRéseau",
			expected: []string{"à Réseau"},
		},
		{
			name:     "junk tokens dropped",
			input:    "Clear selection\nOui\nNon\nEND",
			expected: []string{"Oui", "Non"},
		},
		{
			name:     "symbol only parts dropped before merging",
			input:    "Réseau\n,\nà",
			expected: []string{"Réseau à"},
		},
		{
			name:     "duplicates removed in order",
			input:    "Alpha\nBeta\nAlpha",
			expected: []string{"Alpha", "Beta"},
		},
		{
			name:     "lone short input returned whole",
			input:    "  x ",
			expected: []string{"x"},
		},
		{
			name:     "whitespace only",
			input:    " \n\t ",
			expected: nil,
		},
	}

	seg := NewSegmenter(DefaultRules())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, seg.Split(tt.input))
		})
	}
}

func TestSegmenterNoSplitPathKeepsInput(t *testing.T) {
	seg := NewSegmenter(DefaultRules())
	for _, in := range []string{
		"  Une seule réponse possible ",
		"TCP/IP",
		"Layer 3 routing",
		"end",
	} {
		parts := seg.Split(in)
		assert.Len(t, parts, 1, in)
		assert.Equal(t, []string{strings.TrimSpace(in)}, parts)
	}
}

// The acronym policy is shared: uppercase strings of 2 to 4 runes stand on
// their own, a single uppercase letter does not.
func TestSegmenterAcronymBoundary(t *testing.T) {
	tests := []struct {
		fragment string
		expected []string
	}{
		{"A", []string{"Alpha A"}},
		{"AB", []string{"Alpha", "AB"}},
		{"ab", []string{"Alpha ab"}},
		{"ABC", []string{"Alpha", "ABC"}},
		{"abc", []string{"Alpha", "abc"}},
		{"ABCD", []string{"Alpha", "ABCD"}},
	}

	seg := NewSegmenter(DefaultRules())
	for _, tt := range tests {
		t.Run(tt.fragment, func(t *testing.T) {
			assert.Equal(t, tt.expected, seg.Split("Alpha\n"+tt.fragment))
		})
	}
}
