package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	closer, err := SetupLogger(&LogConfig{Level: "info", Format: "json", OutputFile: path})
	require.NoError(t, err)

	quizLogger := GetQuizLogger("https://moodle.example.com/mod/quiz/view.php?id=7")
	quizLogger.Info().Int("questions", 3).Msg("Quiz saved")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"quiz":"https://moodle.example.com/mod/quiz/view.php?id=7"`)
	assert.Contains(t, string(data), `"questions":3`)
}

func TestSetupLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := SetupLogger(&LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestSetupLoggerWithoutOutputs(t *testing.T) {
	closer, err := SetupLogger(&LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	log.Info().Msg("discarded")
}
