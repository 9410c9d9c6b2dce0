package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maelgoujon/moodle-resource-downloader/internal/config"
	"github.com/maelgoujon/moodle-resource-downloader/internal/harvest"
)

func newCourseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Download a whole course: resources, quizzes and H5P activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, func(s *harvest.Service) (*harvest.Manifest, error) {
				return s.Run(cmd.Context())
			})
		},
	}
	addSessionFlags(cmd.Flags())
	return cmd
}

func newQuizzesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quizzes",
		Short: "Extract only the quizzes linked from the course page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, func(s *harvest.Service) (*harvest.Manifest, error) {
				return s.RunQuizzesOnly(cmd.Context())
			})
		},
	}
	addSessionFlags(cmd.Flags())
	return cmd
}

func runHarvest(cmd *cobra.Command, run func(*harvest.Service) (*harvest.Manifest, error)) error {
	cfg, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := prepareSession(cfg); err != nil {
		return err
	}
	rules, err := cfg.QuizRules()
	if err != nil {
		return err
	}

	service, err := harvest.NewService(cfg, rules)
	if err != nil {
		return err
	}
	manifest, err := run(service)
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", manifest.RunID).
		Str("output", service.Root()).
		Int("failures", manifest.Stats.Failures).
		Msg("Done")
	return nil
}

func prepareSession(cfg *config.Config) error {
	if err := cfg.RequireCourse(); err != nil {
		return err
	}
	return cfg.ResolveCredentials(prompter())
}
