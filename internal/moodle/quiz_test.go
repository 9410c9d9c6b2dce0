package moodle

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maelgoujon/moodle-resource-downloader/pkg/quiz"
)

func questionBlock(id int, question string, answers ...string) string {
	s := fmt.Sprintf(`<div id="q%d" class="que multichoice"><div class="formulation clearfix"><div class="qtext"><p>%s</p></div><div class="answer">`, id, question)
	for i, a := range answers {
		s += fmt.Sprintf(`<div class="r%d"><input type="radio" id="q%d_a%d"><label for="q%d_a%d">%s</label></div>`, i%2, id, i, id, i, a)
	}
	return s + `</div></div></div>`
}

func newQuizSite(t *testing.T) *fakeMoodle {
	t.Helper()
	f := newFakeMoodle(t)

	f.page("/mod/quiz/view.php", func(r *http.Request) string {
		switch r.URL.Query().Get("id") {
		case "30":
			return `<html><head><title>Quiz</title></head><body><h1>Quiz fermé</h1><p>Ce test est fermé depuis le 3 mars.</p></body></html>`
		case "31":
			return `<html><body><h1>Quiz 2</h1>
<form method="post" action="/mod/quiz/startattempt.php">
<input type="hidden" name="cmid" value="31"><input type="hidden" name="sesskey" value="abc">
<button type="submit">Commencer</button></form></body></html>`
		case "32":
			return `<html><body><h1>Quiz 3</h1><a href="/mod/quiz/review.php?attempt=9&cmid=32">Relecture</a></body></html>`
		case "33":
			return `<html><body><h1>Quiz 4</h1>` + questionBlock(1, "Quel est le port de HTTPS ?", "443", "8080") + `</body></html>`
		default:
			return `<html><body><h1>Quiz 5</h1><p>Vous n'avez pas accès à ce test.</p></body></html>`
		}
	})

	f.mux.HandleFunc("/mod/quiz/startattempt.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("sesskey") != "abc" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "/mod/quiz/attempt.php?attempt=5&cmid=31", http.StatusSeeOther)
	})
	f.page("/mod/quiz/attempt.php", func(r *http.Request) string {
		if r.URL.Query().Get("page") == "1" {
			return `<html><body><p>Page 2 sur 2</p>` + questionBlock(2, "Quelle couche gère le routage ?", "Réseau", "Transport") + `</body></html>`
		}
		return `<html><body><p>Page 1 sur 2</p>` + questionBlock(1, "Quel protocole est orienté connexion ?", "TCP", "UDP") + `</body></html>`
	})

	f.static("/mod/quiz/review.php", `<html><body>`+questionBlock(1, "Que signifie DNS ?", "Domain Name System", "Dynamic Network Service")+`
<form method="post" action="/mod/quiz/processattempt.php"><input type="hidden" name="attempt" value="9"><input type="submit" name="next" value="Suivant"></form>
</body></html>`)
	f.mux.HandleFunc("/mod/quiz/processattempt.php", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body>`+questionBlock(2, "Que signifie DNS ?", "Domain Name System", "Distributed Name Store")+
			questionBlock(3, "Quel port utilise SSH ?", "22", "2222")+`</body></html>`)
	})
	return f
}

func readQuiz(t *testing.T, root, file string) quiz.QuizResult {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, file))
	require.NoError(t, err)
	var result quiz.QuizResult
	require.NoError(t, json.Unmarshal(data, &result))
	return result
}

func newQuizDownloader(t *testing.T, f *fakeMoodle) (*QuizDownloader, string) {
	t.Helper()
	store := newTestStore(t)
	pipeline := quiz.NewPipeline(quiz.DefaultRules(), quiz.NormalizerConfig{})
	return NewQuizDownloader(loggedIn(t, f), store, pipeline, 2), store.Root()
}

func TestQuizPaginatedAttempt(t *testing.T) {
	f := newQuizSite(t)
	q, root := newQuizDownloader(t, f)
	quizURL := f.URL + "/mod/quiz/view.php?id=31"

	got, err := q.Download(t.Context(), quizURL, "Réseaux_L3")
	require.NoError(t, err)
	assert.Equal(t, "Quiz 2", got.Title)
	assert.Equal(t, filepath.Join("Réseaux_L3", "QUIZ_Quiz_2.json"), got.File)
	assert.Equal(t, 2, got.Pages)
	assert.Equal(t, 2, got.Questions)

	result := readQuiz(t, root, got.File)
	assert.Equal(t, "Quiz 2", result.QuizTitle)
	assert.Equal(t, quizURL, result.SourceURL)
	require.Len(t, result.Questions, 2)
	assert.Equal(t, "Quel protocole est orienté connexion ?", result.Questions[0].Question, "pages are merged in page order")
	assert.Equal(t, []string{"TCP", "UDP"}, result.Questions[0].Answers)
	assert.Equal(t, "Quelle couche gère le routage ?", result.Questions[1].Question)

	again, err := q.Download(t.Context(), quizURL, "Réseaux_L3")
	require.NoError(t, err)
	assert.True(t, again.Skipped)
}

func TestQuizFollowsNextButtons(t *testing.T) {
	f := newQuizSite(t)
	q, root := newQuizDownloader(t, f)

	got, err := q.Download(t.Context(), f.URL+"/mod/quiz/view.php?id=32", "cours")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Pages)

	result := readQuiz(t, root, got.File)
	require.Len(t, result.Questions, 2)
	assert.Equal(t, "Que signifie DNS ?", result.Questions[0].Question)
	assert.Equal(t, []string{"Domain Name System", "Dynamic Network Service", "Distributed Name Store"}, result.Questions[0].Answers,
		"a question repeated on a later page only adds new answers")
	assert.Equal(t, "Quel port utilise SSH ?", result.Questions[1].Question)
}

func TestQuizQuestionsOnViewPage(t *testing.T) {
	f := newQuizSite(t)
	q, root := newQuizDownloader(t, f)

	got, err := q.Download(t.Context(), f.URL+"/mod/quiz/view.php?id=33", "cours")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Pages)

	result := readQuiz(t, root, got.File)
	require.Len(t, result.Questions, 1)
	assert.Equal(t, []string{"443", "8080"}, result.Questions[0].Answers)
}

func TestQuizUnavailable(t *testing.T) {
	f := newQuizSite(t)

	tests := []struct {
		name    string
		id      string
		wantErr error
		file    string
		json    string
	}{
		{"closed", "30", ErrQuizClosed, "Quiz_fermé_FERME.html", "QUIZ_Quiz_fermé.json"},
		{"no attempt", "34", ErrQuizInaccessible, "Quiz_5_INACCESSIBLE.html", "QUIZ_Quiz_5.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, root := newQuizDownloader(t, f)
			_, err := q.Download(t.Context(), f.URL+"/mod/quiz/view.php?id="+tt.id, "cours")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.FileExists(t, filepath.Join(root, "cours", tt.file))
			assert.NoFileExists(t, filepath.Join(root, "cours", tt.json))
		})
	}
}

func TestFindQuizLinks(t *testing.T) {
	page := htmlPage(t, "https://m.example/course/view.php?id=7", `
<a href="/mod/quiz/view.php?id=40">B</a>
<a href="/mod/quiz/view.php?id=13#x">A</a>
<a href="/mod/quiz/view.php?id=13">A bis</a>
<a href="/mod/resource/view.php?id=11">R</a>`)

	links, err := FindQuizLinks(page)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://m.example/mod/quiz/view.php?id=13",
		"https://m.example/mod/quiz/view.php?id=40",
	}, links)
}

func TestPageNumbers(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []int
	}{
		{"french counter", "<p>Page 1 sur 3</p>", []int{0, 1, 2}},
		{"english counter", "page 2 of 2", []int{0, 1}},
		{"page links", `<a href="attempt.php?attempt=5&page=2">3</a><a href="attempt.php?attempt=5&page=1">2</a><a href="?page=2">3</a>`, []int{1, 2}},
		{"none", "<p>Question 1</p>", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pageNumbers(tt.html))
		})
	}
}
