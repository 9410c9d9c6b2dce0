package cli

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maelgoujon/moodle-resource-downloader/internal/api"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/extractor"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve quiz extraction over HTTP",
		Args:  cobra.NoArgs,
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
			app := api.NewApp(api.NewHandlers(rules, extractor.NewEngine(cfg.Extract), Version))

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.ServeAddr).Msg("Starting extraction API")
				errCh <- app.Listen(cfg.ServeAddr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			log.Info().Msg("Shutting down server...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(ctx); err != nil {
				return err
			}
			log.Info().Msg("Server exited")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	return cmd
}
