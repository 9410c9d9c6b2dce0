package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level" json:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" json:"format"`           // json, pretty
	OutputFile string `mapstructure:"output_file" json:"output_file"` // file path for logs
	Console    bool   `mapstructure:"console" json:"console"`         // also log to stderr
}

// DefaultLogConfig returns the downloader defaults: debug level to
// moodle_downloader.log and readable output on the terminal.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:      "debug",
		Format:     "pretty",
		OutputFile: "moodle_downloader.log",
		Console:    true,
	}
}

// SetupLogger configures the global logger. The returned closer releases the
// log file, if any.
func SetupLogger(config *LogConfig) (io.Closer, error) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)

	if config.Console {
		if config.Format == "pretty" {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: time.Kitchen,
			})
		} else {
			writers = append(writers, os.Stderr)
		}
	}

	if config.OutputFile != "" {
		if dir := filepath.Dir(config.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		logFile, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, logFile)
		closer = logFile
	}

	switch len(writers) {
	case 0:
		log.Logger = zerolog.Nop()
	case 1:
		log.Logger = zerolog.New(writers[0]).With().Timestamp().Logger()
	default:
		log.Logger = zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
	}

	log.Debug().
		Str("level", config.Level).
		Str("format", config.Format).
		Str("output_file", config.OutputFile).
		Bool("console", config.Console).
		Msg("Logger initialized")

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// GetLogger returns a contextual logger
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// GetQuizLogger returns a logger scoped to one quiz.
func GetQuizLogger(quizURL string) zerolog.Logger {
	return log.With().
		Str("component", "quiz").
		Str("quiz", quizURL).
		Logger()
}

// GetStorageLogger returns a logger for storage operations
func GetStorageLogger(operation, root string) zerolog.Logger {
	return log.With().
		Str("storage_operation", operation).
		Str("root", root).
		Logger()
}

// GetRunLogger returns a logger tagged with a harvest run ID.
func GetRunLogger(runID string) zerolog.Logger {
	return log.With().
		Str("run_id", runID).
		Logger()
}
