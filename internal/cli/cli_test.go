package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maelgoujon/moodle-resource-downloader/internal/config"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/quiz"
)

const page0 = `<html><head><title>Quiz 1</title></head><body><h1>  Quiz
réseaux </h1>
<div class="que multichoice"><div class="formulation">
  <div class="qtext">Quel protocole est orienté connexion ?</div>
  <div class="answer">
    <div class="r0"><input type="radio" id="a0"><label for="a0">TCP</label></div>
    <div class="r1"><input type="radio" id="a1"><label for="a1">UDP</label></div>
  </div>
</div></div>
</body></html>`

const page1 = `<html><body>
<div class="que truefalse"><div class="formulation">
  <div class="qtext">IP est un protocole de niveau 3.</div>
  <div class="answer">
    <div class="r0"><input type="radio" id="b0"><label for="b0">Vrai</label></div>
    <div class="r1"><input type="radio" id="b1"><label for="b1">Faux</label></div>
  </div>
</div></div>
</body></html>`

func writePages(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i, content := range []string{page0, page1} {
		p := filepath.Join(dir, "page"+string(rune('0'+i))+".html")
		require.NoError(t, os.WriteFile(p, []byte(content), 0600))
		paths = append(paths, p)
	}
	return dir, paths
}

func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cfgFile := filepath.Join(dir, "moodle-dl.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("log:\n  console: false\n"), 0600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgFile, "--log-file", filepath.Join(dir, "test.log")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestExtractToStdout(t *testing.T) {
	dir, paths := writePages(t)

	out, err := runCLI(t, dir, append([]string{"extract", "--source-url", "https://m.example/mod/quiz/view.php?id=9"}, paths...)...)
	require.NoError(t, err)

	var result quiz.QuizResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "Quiz réseaux", result.QuizTitle)
	assert.Equal(t, "https://m.example/mod/quiz/view.php?id=9", result.SourceURL)

	want, err := extractFiles(quiz.DefaultRules(), quiz.NormalizerConfig{}, paths)
	require.NoError(t, err)
	assert.Equal(t, want.Questions, result.Questions)
	assert.Len(t, result.Questions, 2)
}

func TestExtractToFile(t *testing.T) {
	dir, paths := writePages(t)
	target := filepath.Join(dir, "quiz.json")

	out, err := runCLI(t, dir, append([]string{"extract", "--title", "Examen", "--out", target}, paths...)...)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var result quiz.QuizResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "Examen", result.QuizTitle)
	assert.NotNil(t, result.Questions)
}

func TestExtractErrors(t *testing.T) {
	dir, _ := writePages(t)

	_, err := runCLI(t, dir, "extract")
	assert.Error(t, err, "at least one page is required")

	_, err = runCLI(t, dir, "extract", filepath.Join(dir, "missing.html"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("acronym:\n  min_len: 5\n  max_len: 2\n"), 0600))
	_, err = runCLI(t, dir, "extract", "--rules", bad, filepath.Join(dir, "page0.html"))
	assert.ErrorIs(t, err, quiz.ErrInvalidRuleSet)
}

func TestCourseRequiresURL(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MOODLE_COURSE_URL", "")

	_, err := runCLI(t, dir, "course", "--out", filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, config.ErrMissingURL)
}

func TestQuizzesRequiresCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MOODLE_PASSWORD", "")

	_, err := runCLI(t, dir, "quizzes",
		"--course-url", "https://moodle.example.com/course/view.php?id=3",
		"--credentials", filepath.Join(dir, "none.txt"),
		"--username", "etudiant",
	)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}
