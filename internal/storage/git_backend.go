package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog/log"
)

// GitSnapshotter commits the output tree into a git repository rooted at the
// output directory, so successive runs show what changed on the course.
type GitSnapshotter struct {
	repo             *git.Repository
	repoPath         string
	metricsCollector MetricsCollector
}

// NewGitSnapshotter opens the repository at repoPath, initialising it on
// first use.
func NewGitSnapshotter(repoPath string, metrics MetricsCollector) (*GitSnapshotter, error) {
	repo, err := git.PlainOpen(repoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(repoPath, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	return &GitSnapshotter{
		repo:             repo,
		repoPath:         repoPath,
		metricsCollector: metrics,
	}, nil
}

// Snapshot stages every file and commits it. It returns the commit hash, or
// an empty string when the tree has no changes.
func (g *GitSnapshotter) Snapshot(ctx context.Context, message string) (string, error) {
	start := time.Now()
	hash, err := g.commitAll(ctx, message)

	g.recordMetric("snapshot", start, err == nil, err)
	return hash, err
}

func (g *GitSnapshotter) commitAll(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("failed to add files: %w", err)
	}

	status, err := w.Status()
	if err != nil {
		return "", fmt.Errorf("failed to read worktree status: %w", err)
	}
	if status.IsClean() {
		log.Info().Str("repo", g.repoPath).Msg("Output tree unchanged, no snapshot taken")
		return "", nil
	}

	commit, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "moodle-dl",
			Email: "moodle-dl@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	log.Info().Str("repo", g.repoPath).Str("commit", commit.String()).Msg("Output tree snapshot committed")
	return commit.String(), nil
}

func (g *GitSnapshotter) recordMetric(operation string, start time.Time, success bool, err error) {
	if g.metricsCollector != nil {
		g.metricsCollector.RecordMetric(StorageMetrics{
			OperationType: operation,
			Duration:      time.Since(start).Nanoseconds(),
			Success:       success,
			Backend:       "git",
			Error:         err,
		})
	}
}
