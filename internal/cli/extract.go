package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/quiz"
)

func newExtractCmd() *cobra.Command {
	var title, sourceURL, out string

	cmd := &cobra.Command{
		Use:   "extract PAGE.html...",
		Short: "Extract questions from saved quiz attempt pages, in argument order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			rules, err := cfg.QuizRules()
			if err != nil {
				return err
			}
			result, err := extractFiles(rules, quiz.NormalizerConfig{LowercaseQuestions: cfg.LowercaseQuestions}, args)
			if err != nil {
				return err
			}
			if title != "" {
				result.QuizTitle = title
			}
			result.SourceURL = sourceURL

			data, err := storage.MarshalJSON(result)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			log.Info().Str("file", out).Int("questions", len(result.Questions)).Msg("Quiz written")
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "quiz title (default first page heading)")
	cmd.Flags().StringVar(&sourceURL, "source-url", "", "URL recorded in the result")
	cmd.Flags().StringVar(&out, "out", "", "write JSON to this file instead of stdout")
	return cmd
}

// extractFiles runs the pipeline over HTML files given in page order.
func extractFiles(rules *quiz.Rules, nc quiz.NormalizerConfig, paths []string) (*quiz.QuizResult, error) {
	pipeline := quiz.NewPipeline(rules, nc)

	pages := make([]*goquery.Selection, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		doc, err := goquery.NewDocumentFromReader(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		pages = append(pages, doc.Selection)
	}

	questions := pipeline.Run(pages...)
	if questions == nil {
		questions = []quiz.QuestionRecord{}
	}
	log.Debug().Int("pages", len(pages)).Int("questions", len(questions)).Msg("Pages extracted")

	return &quiz.QuizResult{
		QuizTitle: pageTitle(pages[0]),
		Questions: questions,
	}, nil
}

func pageTitle(doc *goquery.Selection) string {
	if h1 := doc.Find("h1").First().Text(); h1 != "" {
		return collapse(h1)
	}
	return collapse(doc.Find("title").First().Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
