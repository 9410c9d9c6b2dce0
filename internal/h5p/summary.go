package h5p

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
)

const (
	SummaryMarkdown = "H5P_SUMMARY.md"
	SummaryJSON     = "H5P_SUMMARY.json"

	excerptLen      = 300
	maxInteractions = 10
)

// WriteSummary writes H5P_SUMMARY.md and H5P_SUMMARY.json at the output
// root. It is written even when no activity was found.
func WriteSummary(ctx context.Context, store storage.Store, activities []*Activity) error {
	lines := []string{"# Résumé des activités H5P\n"}
	for _, a := range activities {
		lines = append(lines,
			"## "+a.Title,
			"- URL: "+a.URL,
			"- Fichier: "+a.File,
			"- Type: "+a.Type,
		)
		if a.Type == TypeHTML {
			lines = append(lines, fmt.Sprintf("- Extrait de texte :\n\n    %s", excerpt(a.Text)))
			if len(a.Interactions) > 0 {
				lines = append(lines, "- Interactions principales :")
				for _, it := range a.Interactions[:min(len(a.Interactions), maxInteractions)] {
					lines = append(lines, "    - "+it)
				}
			}
		}
		lines = append(lines, "")
	}

	if err := store.WriteFile(ctx, SummaryMarkdown, []byte(strings.Join(lines, "\n"))); err != nil {
		return err
	}
	if activities == nil {
		activities = []*Activity{}
	}
	if err := store.WriteJSON(ctx, SummaryJSON, activities); err != nil {
		return err
	}
	log.Info().Int("activities", len(activities)).Msg("H5P summary written")
	return nil
}

func excerpt(s string) string {
	if utf8.RuneCountInString(s) <= excerptLen {
		return s
	}
	return string([]rune(s)[:excerptLen]) + "..."
}
