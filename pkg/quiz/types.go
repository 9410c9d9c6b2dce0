// Package quiz extracts question and answer records from rendered Moodle quiz
// attempt pages.
//
// A page goes through three stages: the Extractor finds question blocks and
// their raw answers, the Segmenter splits answer text that was rendered
// without separators, and the Normalizer merges the records of every page of
// one attempt into a clean, deduplicated list. All three share one compiled
// Rules value.
package quiz

// QuestionRecord is one question and its distinct answers in discovery order.
type QuestionRecord struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
}

// QuizResult is the persisted form of one extracted quiz.
type QuizResult struct {
	QuizTitle string           `json:"quiz_title"`
	SourceURL string           `json:"source_url"`
	Questions []QuestionRecord `json:"questions"`
}
