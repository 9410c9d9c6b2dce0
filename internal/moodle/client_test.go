package moodle

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	f := newFakeMoodle(t)

	t.Run("valid credentials", func(t *testing.T) {
		c := newTestClient(t)
		require.NoError(t, c.Login(t.Context(), f.URL+"/login/index.php", "etudiant", "s3cret"))

		page, err := c.Get(t.Context(), f.URL+"/my/")
		require.NoError(t, err)
		assert.Equal(t, "Tableau de bord", page.Title())
		assert.False(t, IsLoginPage(page))
	})

	t.Run("shared helper lands on the dashboard", func(t *testing.T) {
		c := loggedIn(t, f)
		page, err := c.Get(t.Context(), f.URL+"/my/")
		require.NoError(t, err)
		assert.Equal(t, "Tableau de bord", page.Title())
	})

	t.Run("wrong password", func(t *testing.T) {
		c := newTestClient(t)
		err := c.Login(t.Context(), f.URL+"/login/index.php", "etudiant", "oops")
		assert.ErrorIs(t, err, ErrLoginFailed)
	})
}

func TestClientHeadersAndStatus(t *testing.T) {
	f := newFakeMoodle(t)
	var gotUA, gotLang string
	f.mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		writeHTML(w, "<html><title> Echo </title></html>")
	})
	f.mux.HandleFunc("/missing", http.NotFound)

	c := newTestClient(t)
	page, err := c.Get(t.Context(), f.URL+"/echo")
	require.NoError(t, err)
	assert.Equal(t, "Echo", page.Title())
	assert.True(t, page.IsHTML())
	assert.Contains(t, gotUA, "Firefox")
	assert.True(t, strings.HasPrefix(gotLang, "fr"))

	_, err = c.Get(t.Context(), f.URL+"/missing")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestClientHostStats(t *testing.T) {
	f := newFakeMoodle(t)
	f.mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	f.mux.HandleFunc("/gone", http.NotFound)

	c := newTestClient(t)
	_, err := c.Get(t.Context(), f.URL+"/boom")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	_, err = c.Get(t.Context(), f.URL+"/boom")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	host := strings.TrimPrefix(f.URL, "http://")
	stats := c.HostStats()[host]
	assert.Equal(t, int64(2), stats.RequestCount)
	assert.Equal(t, int64(2), stats.ErrorCount)
	assert.False(t, stats.InBackoff)

	// A 404 is an answer from a healthy host.
	_, err = c.Get(t.Context(), f.URL+"/gone")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Zero(t, c.HostStats()[host].ErrorCount)
}

func TestPageResolve(t *testing.T) {
	page := htmlPage(t, "https://m.example/course/view.php?id=2", "")
	assert.Equal(t, "https://m.example/mod/quiz/view.php?id=3", page.Resolve("../mod/quiz/view.php?id=3"))
	assert.Equal(t, "https://cdn.example/a.pdf", page.Resolve("https://cdn.example/a.pdf"))
}
