// Package harvest runs a complete course download: login, crawl, resources,
// quizzes, H5P activities and the run manifest.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maelgoujon/moodle-resource-downloader/internal/config"
	"github.com/maelgoujon/moodle-resource-downloader/internal/h5p"
	"github.com/maelgoujon/moodle-resource-downloader/internal/moodle"
	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/extractor"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/logging"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/quiz"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/ratelimit"
)

// ManifestFile is written at the output root after every run.
const ManifestFile = "RUN.json"

// Stats counts what a run produced.
type Stats struct {
	Resources           int `json:"resources"`
	Links               int `json:"links"`
	Skipped             int `json:"skipped"`
	Quizzes             int `json:"quizzes"`
	QuizzesClosed       int `json:"quizzes_closed"`
	QuizzesInaccessible int `json:"quizzes_inaccessible"`
	Questions           int `json:"questions"`
	H5P                 int `json:"h5p"`
	Failures            int `json:"failures"`
}

// Failure records one item that could not be saved.
type Failure struct {
	URL   string `json:"url"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Manifest describes one run.
type Manifest struct {
	RunID       string                         `json:"run_id"`
	Mode        string                         `json:"mode"`
	CourseURL   string                         `json:"course_url"`
	CourseTitle string                         `json:"course_title"`
	StartedAt   time.Time                      `json:"started_at"`
	FinishedAt  time.Time                      `json:"finished_at"`
	Stats       Stats                          `json:"stats"`
	Resources   []*moodle.Download             `json:"resources"`
	Quizzes     []*moodle.QuizDownload         `json:"quizzes"`
	H5P         []*h5p.Activity                `json:"h5p"`
	Failures    []Failure                      `json:"failures"`
	Storage     storage.MetricsSummary         `json:"storage"`
	Hosts       map[string]ratelimit.HostStats `json:"hosts"`
	Snapshot    string                         `json:"-"`
}

// Service wires the Moodle collaborators around one output tree.
type Service struct {
	cfg      *config.Config
	client   *moodle.Client
	store    *storage.FileStore
	metrics  *storage.SimpleMetricsCollector
	snapshot storage.Snapshotter

	crawler   *moodle.Crawler
	resources *moodle.Downloader
	quizzes   *moodle.QuizDownloader
	h5p       *h5p.Downloader
}

// NewService builds the collaborators from cfg. cfg must carry a course URL
// and credentials.
func NewService(cfg *config.Config, rules *quiz.Rules) (*Service, error) {
	client, err := moodle.NewClient(moodle.ClientConfig{
		Timeout:           cfg.HTTP.Timeout,
		DownloadTimeout:   cfg.HTTP.DownloadTimeout,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
		UserAgent:         cfg.HTTP.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	metrics := storage.NewSimpleMetricsCollector()
	store, err := storage.NewFileStore(cfg.OutputDir, metrics)
	if err != nil {
		return nil, err
	}

	var snapshot storage.Snapshotter
	if cfg.GitSnapshot {
		if snapshot, err = storage.NewGitSnapshotter(store.Root(), metrics); err != nil {
			return nil, err
		}
	}

	var engine *extractor.Engine
	if cfg.Sidecars {
		engine = extractor.NewEngine(cfg.Extract)
	}

	pipeline := quiz.NewPipeline(rules, quiz.NormalizerConfig{LowercaseQuestions: cfg.LowercaseQuestions})

	return &Service{
		cfg:       cfg,
		client:    client,
		store:     store,
		metrics:   metrics,
		snapshot:  snapshot,
		crawler:   moodle.NewCrawler(client, store),
		resources: moodle.NewDownloader(client, store, engine),
		quizzes:   moodle.NewQuizDownloader(client, store, pipeline, cfg.Quiz.PageConcurrency),
		h5p:       h5p.NewDownloader(client, store),
	}, nil
}

// Run downloads the whole course. Individual resource, quiz and H5P
// failures are recorded in the manifest; only login, the course page and
// the manifest itself abort the run.
func (s *Service) Run(ctx context.Context) (*Manifest, error) {
	m, logger := s.begin("course")

	if err := s.client.Login(ctx, s.cfg.LoginURL, s.cfg.Username, s.cfg.Password); err != nil {
		return nil, err
	}

	crawl, err := s.crawler.Crawl(ctx, s.cfg.CourseURL)
	if err != nil {
		return nil, fmt.Errorf("course crawl failed: %w", err)
	}
	m.CourseTitle = crawl.CourseTitle
	if len(crawl.Resources) == 0 && len(crawl.Quizzes) == 0 && len(crawl.H5P) == 0 {
		logger.Warn().Msg("No resource files, quizzes or H5P activities found on the course page")
	}

	local := make(map[string]string)
	for _, r := range crawl.Resources {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d, err := s.resources.Download(ctx, r)
		if err != nil {
			s.fail(m, logger, r.URL, "resource", err)
			continue
		}
		m.Resources = append(m.Resources, d)
		local[moodle.StripFragment(r.URL)] = d.File
		switch {
		case d.Link:
			m.Stats.Links++
		case d.Skipped:
			m.Stats.Skipped++
		default:
			m.Stats.Resources++
		}
	}

	if err := s.crawler.WriteMarkdown(ctx, crawl.Pages, local); err != nil {
		logger.Warn().Err(err).Msg("Failed to write course Markdown")
	}

	for _, q := range crawl.Quizzes {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.downloadQuiz(ctx, m, logger, q.URL, q.Folder)
	}

	var activities []*h5p.Activity
	for _, link := range crawl.H5P {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a, err := s.h5p.Download(ctx, link)
		if err != nil {
			s.fail(m, logger, link.URL, "h5p", err)
			continue
		}
		activities = append(activities, a)
		m.Stats.H5P++
	}
	m.H5P = activities
	if err := h5p.WriteSummary(ctx, s.store, activities); err != nil {
		logger.Warn().Err(err).Msg("Failed to write H5P summary")
	}

	return s.finish(ctx, m, logger)
}

// RunQuizzesOnly downloads the quizzes linked from the course page into
// <out>/<course title>/.
func (s *Service) RunQuizzesOnly(ctx context.Context) (*Manifest, error) {
	m, logger := s.begin("quizzes")

	if err := s.client.Login(ctx, s.cfg.LoginURL, s.cfg.Username, s.cfg.Password); err != nil {
		return nil, err
	}

	page, err := s.client.Get(ctx, s.cfg.CourseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load course page: %w", err)
	}
	m.CourseTitle = page.Title()
	if m.CourseTitle == "" {
		m.CourseTitle = "course"
	}
	folder := moodle.SafeName(m.CourseTitle)

	links, err := moodle.FindQuizLinks(page)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		logger.Warn().Msg("No quiz found on the course page")
	}
	for _, link := range links {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.downloadQuiz(ctx, m, logger, link, folder)
	}

	return s.finish(ctx, m, logger)
}

func (s *Service) downloadQuiz(ctx context.Context, m *Manifest, logger zerolog.Logger, quizURL, folder string) {
	d, err := s.quizzes.Download(ctx, quizURL, folder)
	switch {
	case errors.Is(err, moodle.ErrQuizClosed):
		m.Stats.QuizzesClosed++
		logger.Warn().Str("quiz", quizURL).Msg("Quiz is closed")
	case errors.Is(err, moodle.ErrQuizInaccessible):
		m.Stats.QuizzesInaccessible++
		logger.Warn().Str("quiz", quizURL).Msg("Quiz attempt is not accessible")
	case err != nil:
		s.fail(m, logger, quizURL, "quiz", err)
	default:
		m.Quizzes = append(m.Quizzes, d)
		if d.Skipped {
			m.Stats.Skipped++
			return
		}
		m.Stats.Quizzes++
		m.Stats.Questions += d.Questions
	}
}

func (s *Service) begin(mode string) (*Manifest, zerolog.Logger) {
	m := &Manifest{
		RunID:     uuid.NewString(),
		Mode:      mode,
		CourseURL: s.cfg.CourseURL,
		StartedAt: time.Now().UTC(),
		Resources: []*moodle.Download{},
		Quizzes:   []*moodle.QuizDownload{},
		H5P:       []*h5p.Activity{},
		Failures:  []Failure{},
	}
	logger := logging.GetRunLogger(m.RunID)
	logger.Info().
		Str("mode", mode).
		Str("course_url", s.cfg.CourseURL).
		Str("out", s.store.Root()).
		Msg("Run started")
	return m, logger
}

func (s *Service) fail(m *Manifest, logger zerolog.Logger, url, kind string, err error) {
	m.Stats.Failures++
	m.Failures = append(m.Failures, Failure{URL: url, Kind: kind, Error: err.Error()})
	logger.Error().Err(err).Str("url", url).Str("kind", kind).Msg("Download failed")
}

func (s *Service) finish(ctx context.Context, m *Manifest, logger zerolog.Logger) (*Manifest, error) {
	m.FinishedAt = time.Now().UTC()
	m.Storage = s.metrics.Summary()
	m.Hosts = s.client.HostStats()
	if err := s.store.WriteJSON(ctx, ManifestFile, m); err != nil {
		return m, fmt.Errorf("failed to write run manifest: %w", err)
	}

	if s.snapshot != nil {
		msg := fmt.Sprintf("%s run %s: %d resources, %d quizzes, %d h5p", m.Mode, m.RunID, m.Stats.Resources, m.Stats.Quizzes, m.Stats.H5P)
		hash, err := s.snapshot.Snapshot(ctx, msg)
		if err != nil {
			logger.Warn().Err(err).Msg("Git snapshot failed")
		}
		m.Snapshot = hash
	}

	logger.Info().
		Str("course", m.CourseTitle).
		Int("resources", m.Stats.Resources).
		Int("links", m.Stats.Links).
		Int("skipped", m.Stats.Skipped).
		Int("quizzes", m.Stats.Quizzes).
		Int("questions", m.Stats.Questions).
		Int("h5p", m.Stats.H5P).
		Int("failures", m.Stats.Failures).
		Dur("duration", m.FinishedAt.Sub(m.StartedAt)).
		Str("manifest", filepath.Join(s.store.Root(), ManifestFile)).
		Msg("Run finished")
	return m, nil
}

// Root returns the absolute output directory.
func (s *Service) Root() string {
	return s.store.Root()
}
