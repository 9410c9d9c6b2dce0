package moodle

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
)

const sessionCookie = "MoodleSession"

// fakeMoodle serves handlers registered per path and requires a session
// cookie on every path except the login page.
type fakeMoodle struct {
	*httptest.Server
	mux *http.ServeMux
}

func newFakeMoodle(t *testing.T) *fakeMoodle {
	t.Helper()
	f := &fakeMoodle{mux: http.NewServeMux()}
	f.mux.HandleFunc("/login/index.php", f.login)
	f.static("/my/", dashboard)
	f.Server = httptest.NewServer(f.mux)
	t.Cleanup(f.Close)
	return f
}

const loginForm = `<html><head><title>Connexion</title></head><body>
<form action="/login/index.php" method="post">
<input type="hidden" name="logintoken" value="tok123">
<input type="text" name="username"><input type="password" name="password">
</form></body></html>`

const dashboard = `<html><head><title>Tableau de bord</title></head><body>ok</body></html>`

func (f *fakeMoodle) login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		if r.FormValue("logintoken") == "tok123" && r.FormValue("username") == "etudiant" && r.FormValue("password") == "s3cret" {
			http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "abc", Path: "/"})
			http.Redirect(w, r, "/my/", http.StatusSeeOther)
			return
		}
	}
	writeHTML(w, loginForm)
}

// page registers an authenticated HTML page.
func (f *fakeMoodle) page(path string, body func(r *http.Request) string) {
	f.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(sessionCookie); err != nil {
			writeHTML(w, loginForm)
			return
		}
		writeHTML(w, body(r))
	})
}

// static registers a fixed HTML page.
func (f *fakeMoodle) static(path, body string) {
	f.page(path, func(*http.Request) string { return body })
}

func (f *fakeMoodle) file(path, contentType, body string) {
	f.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		io.WriteString(w, body)
	})
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, body)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{Timeout: 5 * time.Second, DownloadTimeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

// loggedIn returns a client holding a valid session on f.
func loggedIn(t *testing.T, f *fakeMoodle) *Client {
	t.Helper()
	c := newTestClient(t)
	require.NoError(t, c.Login(t.Context(), f.URL+"/login/index.php", "etudiant", "s3cret"))
	return c
}

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}
