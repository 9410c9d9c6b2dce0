package quiz

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRuleSet is returned when a rule set cannot be compiled.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// MarkerRule describes a phrase that introduces the answer list in rendered
// question text. When Strip is set the matched phrase is removed from the
// tail before segmentation; otherwise the tail starts at the match.
type MarkerRule struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Strip   bool   `yaml:"strip" json:"strip"`
}

// TrueFalseCue synthesizes Options when Pattern matches a question that
// yielded no answers.
type TrueFalseCue struct {
	Pattern string   `yaml:"pattern" json:"pattern"`
	Options []string `yaml:"options" json:"options"`
}

// ClassPatterns are matched against individual class tokens.
type ClassPatterns struct {
	Block      string `yaml:"block" json:"block"`
	Prompt     string `yaml:"prompt" json:"prompt"`
	Answer     string `yaml:"answer" json:"answer"`
	Pagination string `yaml:"pagination" json:"pagination"`
}

// AcronymPolicy bounds the rune length of uppercase strings that survive
// short-fragment filtering.
type AcronymPolicy struct {
	MinLen int `yaml:"min_len" json:"min_len"`
	MaxLen int `yaml:"max_len" json:"max_len"`
}

// RuleSet is the declarative configuration shared by the extractor, the
// segmenter and the normalizer.
type RuleSet struct {
	JunkTokens         []string       `yaml:"junk_tokens" json:"junk_tokens"`
	AnswerIntroMarkers []MarkerRule   `yaml:"answer_intro_markers" json:"answer_intro_markers"`
	TrueFalseCues      []TrueFalseCue `yaml:"true_false_cues" json:"true_false_cues"`
	Delimiters         []string       `yaml:"delimiters" json:"delimiters"`
	Patterns           ClassPatterns  `yaml:"patterns" json:"patterns"`
	Acronym            AcronymPolicy  `yaml:"acronym" json:"acronym"`
	ShortFragmentLen   int            `yaml:"short_fragment_len" json:"short_fragment_len"`
}

// DefaultRuleSet returns the French and English rules for Moodle quiz pages.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		JunkTokens: []string{
			"end",
			"retirer la marque",
			"effacer mon choix",
			"marquer la question",
			"remove choice",
			"clear selection",
			"clear my choice",
			"flag question",
			"remove flag",
		},
		AnswerIntroMarkers: []MarkerRule{
			{Name: "fr_choose", Pattern: `(?i)veuillez choisir(?: au moins)?(?: une| une ou plusieurs)?(?: réponses?)?\s*[.:]?`, Strip: true},
			{Name: "fr_check", Pattern: `(?i)veuillez cocher(?: une| une ou plusieurs)?(?: réponses?)?\s*[.:]?`, Strip: true},
			{Name: "fr_select", Pattern: `(?i)veuillez sélectionner(?: une| une ou plusieurs)?(?: réponses?)?\s*[.:]?`, Strip: true},
			{Name: "fr_imperative", Pattern: `(?i)choisissez(?: une| une ou plusieurs)?(?: réponses?)?\s*:?`, Strip: true},
			{Name: "en_please", Pattern: `(?i)please (?:choose|check|select)(?: one| one or more)?(?: answers?| options?)?\s*[.:]?`, Strip: true},
			{Name: "en_select", Pattern: `(?i)select one(?: or more)?\s*:?`, Strip: true},
			{Name: "fr_true_false", Pattern: `(?i)vrai\s+faux`},
			{Name: "en_true_false", Pattern: `(?i)true\s+false`},
		},
		TrueFalseCues: []TrueFalseCue{
			{Pattern: `(?i)\b(vrai|faux)\b`, Options: []string{"VRAI", "FAUX"}},
			{Pattern: `(?i)\b(true|false)\b`, Options: []string{"TRUE", "FALSE"}},
		},
		Delimiters: []string{
			`(?:\r\n|\r|\n)+`,
			`\s{2,}|;|\||•|–|—|--`,
			`\s*\d+\)\s*`,
		},
		Patterns: ClassPatterns{
			Block:      `que|question|formulation`,
			Prompt:     `qtext|formulation|prompt`,
			Answer:     `answer|réponse|choice|option|response|choices|single`,
			Pagination: `(?i)\(page\s*\d+\s*(?:sur|of)\s*\d+\)`,
		},
		Acronym:          AcronymPolicy{MinLen: 2, MaxLen: 4},
		ShortFragmentLen: 2,
	}
}

// LoadRuleSet reads a YAML rule file. Keys absent from the file keep their
// default values.
func LoadRuleSet(path string) (RuleSet, error) {
	rs := DefaultRuleSet()
	data, err := os.ReadFile(path)
	if err != nil {
		return rs, fmt.Errorf("failed to read rule file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return rs, fmt.Errorf("%w: %s: %v", ErrInvalidRuleSet, path, err)
	}
	return rs, nil
}

type compiledMarker struct {
	name  string
	re    *regexp.Regexp
	strip bool
}

type compiledCue struct {
	re      *regexp.Regexp
	options []string
}

// Rules is a compiled, validated RuleSet. It is safe for concurrent use.
type Rules struct {
	source      RuleSet
	junk        map[string]struct{}
	junkPhrases *regexp.Regexp
	markers     []compiledMarker
	cues        []compiledCue
	delimiters  []*regexp.Regexp
	block       *regexp.Regexp
	prompt      *regexp.Regexp
	answer      *regexp.Regexp
	pagination  *regexp.Regexp
	acronym     AcronymPolicy
	shortLen    int
}

// Compile validates the rule set and prepares its patterns.
func (rs RuleSet) Compile() (*Rules, error) {
	r := &Rules{
		source:   rs,
		junk:     make(map[string]struct{}, len(rs.JunkTokens)),
		acronym:  rs.Acronym,
		shortLen: rs.ShortFragmentLen,
	}
	if r.acronym.MinLen < 1 || r.acronym.MaxLen < r.acronym.MinLen {
		return nil, fmt.Errorf("%w: acronym bounds %d..%d", ErrInvalidRuleSet, r.acronym.MinLen, r.acronym.MaxLen)
	}
	if r.shortLen < 0 {
		return nil, fmt.Errorf("%w: negative short_fragment_len", ErrInvalidRuleSet)
	}

	var phrases []string
	for _, tok := range rs.JunkTokens {
		tok = strings.ToLower(strings.Join(strings.Fields(tok), " "))
		if tok == "" {
			continue
		}
		r.junk[tok] = struct{}{}
		if strings.Contains(tok, " ") {
			phrases = append(phrases, strings.ReplaceAll(regexp.QuoteMeta(tok), " ", `\s+`))
		}
	}
	if len(phrases) > 0 {
		r.junkPhrases = regexp.MustCompile(`(?i)\b(?:` + strings.Join(phrases, "|") + `)\b`)
	}

	for _, m := range rs.AnswerIntroMarkers {
		re, err := compilePattern("answer_intro_markers", m.Pattern)
		if err != nil {
			return nil, err
		}
		r.markers = append(r.markers, compiledMarker{name: m.Name, re: re, strip: m.Strip})
	}
	for _, c := range rs.TrueFalseCues {
		re, err := compilePattern("true_false_cues", c.Pattern)
		if err != nil {
			return nil, err
		}
		if len(c.Options) == 0 {
			return nil, fmt.Errorf("%w: true_false_cues %q has no options", ErrInvalidRuleSet, c.Pattern)
		}
		r.cues = append(r.cues, compiledCue{re: re, options: c.Options})
	}
	for _, d := range rs.Delimiters {
		re, err := compilePattern("delimiters", d)
		if err != nil {
			return nil, err
		}
		r.delimiters = append(r.delimiters, re)
	}

	var err error
	if r.block, err = compilePattern("patterns.block", rs.Patterns.Block); err != nil {
		return nil, err
	}
	if r.prompt, err = compilePattern("patterns.prompt", rs.Patterns.Prompt); err != nil {
		return nil, err
	}
	if r.answer, err = compilePattern("patterns.answer", rs.Patterns.Answer); err != nil {
		return nil, err
	}
	if r.pagination, err = compilePattern("patterns.pagination", rs.Patterns.Pagination); err != nil {
		return nil, err
	}
	return r, nil
}

func compilePattern(field, pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("%w: %s: empty pattern", ErrInvalidRuleSet, field)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidRuleSet, field, pattern, err)
	}
	return re, nil
}

// DefaultRules compiles DefaultRuleSet.
func DefaultRules() *Rules {
	r, err := DefaultRuleSet().Compile()
	if err != nil {
		panic(err)
	}
	return r
}

// Source returns the rule set the rules were compiled from.
func (r *Rules) Source() RuleSet {
	return r.source
}

// IsJunk reports whether s is exactly a junk token, ignoring case and
// surrounding whitespace.
func (r *Rules) IsJunk(s string) bool {
	_, ok := r.junk[strings.ToLower(strings.Join(strings.Fields(s), " "))]
	return ok
}

// StripJunkPhrases removes embedded multi-word junk phrases from s.
func (r *Rules) StripJunkPhrases(s string) string {
	if r.junkPhrases == nil {
		return s
	}
	return r.junkPhrases.ReplaceAllString(s, " ")
}

// IsAcronym reports whether s is uppercase with a rune length inside the
// acronym bounds. A string is uppercase when it has at least one upper case
// letter and no lower or title case letters.
func (r *Rules) IsAcronym(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < r.acronym.MinLen || n > r.acronym.MaxLen {
		return false
	}
	return isUpper(s)
}

// IsShort reports whether s is a fragment too short to stand on its own.
func (r *Rules) IsShort(s string) bool {
	return utf8.RuneCountInString(s) <= r.shortLen && !r.IsAcronym(s)
}

func isUpper(s string) bool {
	cased := false
	for _, c := range s {
		if unicode.IsLower(c) || unicode.IsTitle(c) {
			return false
		}
		if unicode.IsUpper(c) {
			cased = true
		}
	}
	return cased
}

// isSymbolic reports whether s holds no letter and no digit.
func isSymbolic(s string) bool {
	for _, c := range s {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			return false
		}
	}
	return true
}

// stripPagination removes "(page N of M)" annotations.
func (r *Rules) stripPagination(s string) string {
	return r.pagination.ReplaceAllString(s, "")
}

// findMarker returns the leftmost marker match in s. Ties go to the marker
// listed first.
func (r *Rules) findMarker(s string) (compiledMarker, []int, bool) {
	var (
		best    compiledMarker
		bestLoc []int
	)
	for _, m := range r.markers {
		loc := m.re.FindStringIndex(s)
		if loc == nil {
			continue
		}
		if bestLoc == nil || loc[0] < bestLoc[0] {
			best, bestLoc = m, loc
		}
	}
	return best, bestLoc, bestLoc != nil
}

// trueFalseOptions returns the options of the first cue matching s.
func (r *Rules) trueFalseOptions(s string) []string {
	for _, c := range r.cues {
		if c.re.MatchString(s) {
			return append([]string(nil), c.options...)
		}
	}
	return nil
}

func matchesClass(re *regexp.Regexp, class string) bool {
	for _, tok := range strings.Fields(class) {
		if re.MatchString(tok) {
			return true
		}
	}
	return false
}
