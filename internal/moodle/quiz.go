package moodle

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/logging"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/quiz"
)

var (
	closedQuizMarkers = []string{"ce test est fermé", "this quiz is closed"}
	pageCountPattern  = regexp.MustCompile(`(?i)page\s*\d+\s*(?:sur|of)\s*(\d+)`)
	pageParamPattern  = regexp.MustCompile(`page=(\d+)`)
	attemptAction     = regexp.MustCompile(`attempt\.php`)
	nextButtonName    = regexp.MustCompile(`(?i)next`)
)

// QuizDownload describes a saved quiz. File is relative to the output root.
type QuizDownload struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	File      string `json:"file"`
	Pages     int    `json:"pages"`
	Questions int    `json:"questions"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// QuizDownloader opens quiz attempts and saves their questions as JSON.
type QuizDownloader struct {
	client      *Client
	store       storage.Store
	pipeline    *quiz.Pipeline
	concurrency int
}

// NewQuizDownloader creates a downloader fetching up to concurrency attempt
// pages at once.
func NewQuizDownloader(client *Client, store storage.Store, pipeline *quiz.Pipeline, concurrency int) *QuizDownloader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &QuizDownloader{client: client, store: store, pipeline: pipeline, concurrency: concurrency}
}

// Download saves the questions of one quiz into folder as
// QUIZ_<title>.json. A closed quiz is saved as <title>_FERME.html and
// reported with ErrQuizClosed; a quiz without a reachable attempt is saved
// as <title>_INACCESSIBLE.html and reported with ErrQuizInaccessible.
func (q *QuizDownloader) Download(ctx context.Context, quizURL, folder string) (*QuizDownload, error) {
	logger := logging.GetQuizLogger(quizURL)

	view, err := q.client.Get(ctx, quizURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz page: %w", err)
	}
	doc, err := view.Document()
	if err != nil {
		return nil, err
	}

	title := quizTitle(doc, quizURL)
	safe := SafeName(title)
	result := &QuizDownload{URL: quizURL, Title: title, File: filepath.Join(folder, "QUIZ_"+safe+".json")}

	if q.store.Exists(result.File) {
		logger.Info().Str("file", result.File).Msg("Quiz already saved")
		result.Skipped = true
		return result, nil
	}

	if isClosed(doc) {
		q.savePage(ctx, logger, filepath.Join(folder, safe+"_FERME.html"), view.Body)
		return nil, ErrQuizClosed
	}

	attempt, err := q.openAttempt(ctx, logger, view, doc)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		q.savePage(ctx, logger, filepath.Join(folder, safe+"_INACCESSIBLE.html"), view.Body)
		return nil, ErrQuizInaccessible
	}

	perPage, err := q.collectPages(ctx, logger, view, attempt)
	if err != nil {
		return nil, err
	}

	questions := q.pipeline.Merge(perPage)
	if questions == nil {
		questions = []quiz.QuestionRecord{}
	}
	out := quiz.QuizResult{QuizTitle: title, SourceURL: quizURL, Questions: questions}
	if err := q.store.WriteJSON(ctx, result.File, out); err != nil {
		return nil, err
	}

	result.Pages = len(perPage)
	result.Questions = len(questions)
	logger.Info().
		Str("file", result.File).
		Int("pages", result.Pages).
		Int("questions", result.Questions).
		Msg("Quiz saved")
	return result, nil
}

// openAttempt returns the page holding the questions: an existing review,
// a freshly started attempt, or the view page itself when it already lists
// questions. It returns nil when none applies.
func (q *QuizDownloader) openAttempt(ctx context.Context, logger zerolog.Logger, view *Page, doc *goquery.Document) (*Page, error) {
	if href, ok := firstHref(doc, "a[href]", func(h string) bool { return strings.Contains(h, "review.php?attempt=") }); ok {
		logger.Info().Msg("Using existing review attempt")
		return q.client.Get(ctx, view.Resolve(href))
	}

	var form *goquery.Selection
	doc.Find("form").EachWithBreak(func(_ int, f *goquery.Selection) bool {
		method, _ := f.Attr("method")
		action, _ := f.Attr("action")
		if strings.EqualFold(method, "post") && attemptAction.MatchString(action) {
			form = f
			return false
		}
		return true
	})
	if form != nil {
		action, _ := form.Attr("action")
		logger.Info().Str("action", action).Msg("Starting a new attempt")
		return q.client.PostForm(ctx, view.Resolve(action), formValues(form))
	}

	if q.pipeline.Extractor().HasQuestions(doc.Selection) {
		logger.Info().Msg("Questions found on the quiz page itself")
		return view, nil
	}

	logger.Warn().Msg("No review link or start form found on quiz page")
	return nil, nil
}

// collectPages extracts every page of the attempt, in page order. Explicit
// "page N of M" counters and page= links are fetched concurrently; otherwise
// the "next" submit buttons are followed until a page repeats.
func (q *QuizDownloader) collectPages(ctx context.Context, logger zerolog.Logger, view, attempt *Page) ([][]quiz.QuestionRecord, error) {
	pages := pageNumbers(string(attempt.Body) + string(view.Body))
	if len(pages) == 0 {
		logger.Debug().Msg("No pagination found, following next buttons")
		return q.followNext(ctx, logger, attempt)
	}

	logger.Info().Int("pages", len(pages)).Msg("Quiz pagination detected")
	perPage := make([][]quiz.QuestionRecord, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.concurrency)
	for i, p := range pages {
		g.Go(func() error {
			page, err := q.client.Get(gctx, withPage(attempt.URL, p))
			if err != nil {
				return fmt.Errorf("failed to load quiz page %d: %w", p, err)
			}
			doc, err := page.Document()
			if err != nil {
				return err
			}
			perPage[i] = q.pipeline.ExtractPage(doc.Selection)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return perPage, nil
}

func (q *QuizDownloader) followNext(ctx context.Context, logger zerolog.Logger, current *Page) ([][]quiz.QuestionRecord, error) {
	var perPage [][]quiz.QuestionRecord
	visited := make(map[string]bool)

	for current != nil && !visited[current.URL.String()] {
		visited[current.URL.String()] = true
		doc, err := current.Document()
		if err != nil {
			return nil, err
		}
		perPage = append(perPage, q.pipeline.ExtractPage(doc.Selection))

		form := nextForm(doc)
		if form == nil {
			break
		}
		action := current.URL.String()
		if a, ok := form.Attr("action"); ok && a != "" {
			action = current.Resolve(a)
		}
		next, err := q.client.PostForm(ctx, action, formValues(form))
		if err != nil {
			logger.Warn().Err(err).Str("url", action).Msg("Stopped following next pages")
			break
		}
		current = next
	}
	return perPage, nil
}

func (q *QuizDownloader) savePage(ctx context.Context, logger zerolog.Logger, file string, body []byte) {
	if err := q.store.WriteFile(ctx, file, body); err != nil {
		logger.Warn().Err(err).Str("file", file).Msg("Failed to save quiz page")
		return
	}
	logger.Info().Str("file", file).Msg("Quiz page saved for reference")
}

// FindQuizLinks lists the distinct quiz links of a course page, sorted.
func FindQuizLinks(page *Page) ([]string, error) {
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		full := StripFragment(page.Resolve(href))
		if Classify(full) == KindQuiz && !seen[full] {
			seen[full] = true
			links = append(links, full)
		}
	})
	sort.Strings(links)
	return links, nil
}

func quizTitle(doc *goquery.Document, quizURL string) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if u := parseURL(quizURL); u != nil {
		return path.Base(u.Path)
	}
	return "quiz"
}

func isClosed(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Text())
	for _, m := range closedQuizMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// pageNumbers returns the attempt page indexes announced by html.
func pageNumbers(html string) []int {
	if m := pageCountPattern.FindStringSubmatch(html); m != nil {
		if total, err := strconv.Atoi(m[1]); err == nil && total > 0 {
			pages := make([]int, total)
			for i := range pages {
				pages[i] = i
			}
			return pages
		}
	}

	seen := make(map[int]bool)
	var pages []int
	for _, m := range pageParamPattern.FindAllStringSubmatch(html, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && !seen[n] {
			seen[n] = true
			pages = append(pages, n)
		}
	}
	sort.Ints(pages)
	return pages
}

func withPage(u *url.URL, page int) string {
	next := *u
	q := next.Query()
	q.Set("page", strconv.Itoa(page))
	next.RawQuery = q.Encode()
	return next.String()
}

func nextForm(doc *goquery.Document) *goquery.Selection {
	var form *goquery.Selection
	doc.Find(`input[type="submit"][name]`).EachWithBreak(func(_ int, in *goquery.Selection) bool {
		name, _ := in.Attr("name")
		if !nextButtonName.MatchString(name) {
			return true
		}
		if f := in.Closest("form"); f.Length() > 0 {
			form = f
		}
		return false
	})
	return form
}

func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		value, _ := in.Attr("value")
		values.Set(name, value)
	})
	return values
}
