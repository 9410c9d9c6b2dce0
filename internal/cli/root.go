// Package cli wires the moodle-dl commands.
package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maelgoujon/moodle-resource-downloader/internal/config"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/logging"
)

// Version is set at build time.
var Version = "dev"

var configPath string

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "moodle-dl",
		Short:         "Download Moodle course material and extract quiz questions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to YAML config (default ./moodle-dl.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-file", "", "log file path")
	pf.String("log-format", "", "console log format: pretty or json")
	pf.String("rules", "", "YAML quiz rule set")
	pf.Bool("lowercase", false, "emit lower-cased question text")

	cmd.AddCommand(newCourseCmd())
	cmd.AddCommand(newQuizzesCmd())
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// addSessionFlags registers the flags of commands that talk to Moodle.
func addSessionFlags(f *pflag.FlagSet) {
	f.String("course-url", "", "course page URL")
	f.String("login-url", "", "login page URL (default derived from the course URL)")
	f.String("username", "", "Moodle username")
	f.String("credentials", "", "file with username= and password= lines")
	f.String("out", "", "output directory")
	f.Int("concurrency", 0, "quiz pages fetched in parallel")
	f.Float64("rps", 0, "maximum requests per second")
	f.Bool("git-snapshot", false, "commit the output directory after the run")
	f.Bool("sidecars", true, "write .txt sidecars next to downloaded documents")
}

// setup loads the configuration for cmd and installs the global logger.
func setup(cmd *cobra.Command) (*config.Config, io.Closer, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	closer, err := logging.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	log.Debug().Str("command", cmd.Name()).Str("version", Version).Msg("Configuration loaded")
	return cfg, closer, nil
}

// prompter returns an interactive prompter, or nil when stdin is not a
// terminal.
func prompter() config.Prompter {
	if p := config.NewTerminalPrompter(); p != nil {
		return p
	}
	return nil
}
