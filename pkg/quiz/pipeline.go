package quiz

import "github.com/PuerkitoBio/goquery"

// Pipeline runs extraction on every page of one attempt and normalizes the
// concatenated result.
type Pipeline struct {
	extractor  *Extractor
	normalizer *Normalizer
}

// NewPipeline wires an extractor and a normalizer sharing rules.
func NewPipeline(rules *Rules, config NormalizerConfig) *Pipeline {
	return &Pipeline{
		extractor:  NewExtractor(rules),
		normalizer: NewNormalizer(rules, config),
	}
}

// Extractor returns the page extractor.
func (p *Pipeline) Extractor() *Extractor {
	return p.extractor
}

// ExtractPage extracts one page. Calls for different pages share no state.
func (p *Pipeline) ExtractPage(page *goquery.Selection) []QuestionRecord {
	return p.extractor.Extract(page)
}

// Merge concatenates per-page records in page order and normalizes them.
func (p *Pipeline) Merge(pages [][]QuestionRecord) []QuestionRecord {
	var all []QuestionRecord
	for _, recs := range pages {
		all = append(all, recs...)
	}
	return p.normalizer.Normalize(all)
}

// Run extracts and merges pages given in page order.
func (p *Pipeline) Run(pages ...*goquery.Selection) []QuestionRecord {
	perPage := make([][]QuestionRecord, len(pages))
	for i, page := range pages {
		perPage[i] = p.ExtractPage(page)
	}
	return p.Merge(perPage)
}
