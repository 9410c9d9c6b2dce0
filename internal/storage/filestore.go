package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileStore writes the course tree to the local filesystem. Paths are either
// absolute or relative to the root.
type FileStore struct {
	root    string
	metrics MetricsCollector
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, metrics MetricsCollector) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", abs, err)
	}
	return &FileStore{root: abs, metrics: metrics}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

// Rel returns path relative to the root, or path itself when outside it.
func (s *FileStore) Rel(path string) string {
	rel, err := filepath.Rel(s.root, s.resolve(path))
	if err != nil {
		return path
	}
	return rel
}

// Exists reports whether a file or directory exists at path.
func (s *FileStore) Exists(path string) bool {
	_, err := os.Stat(s.resolve(path))
	return err == nil
}

// WriteFile writes data, creating parent directories.
func (s *FileStore) WriteFile(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	err := s.writeFile(ctx, path, data)
	s.recordMetric("write_file", start, int64(len(data)), err)
	return err
}

func (s *FileStore) writeFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", full, err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", full, err)
	}
	return nil
}

// WriteStream copies r into path through a temporary file so an interrupted
// download never leaves a partial file under the final name.
func (s *FileStore) WriteStream(ctx context.Context, path string, r io.Reader) (int64, error) {
	start := time.Now()
	n, err := s.writeStream(ctx, path, r)
	s.recordMetric("write_stream", start, n, err)
	return n, err
}

func (s *FileStore) writeStream(ctx context.Context, path string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", full, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".partial-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", full, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return n, fmt.Errorf("failed to move download into place: %w", err)
	}
	return n, nil
}

// WriteJSON writes v as indented JSON without escaping HTML characters.
func (s *FileStore) WriteJSON(ctx context.Context, path string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	return s.WriteFile(ctx, path, data)
}

// MarshalJSON encodes v indented, keeping non-ASCII text and HTML
// characters as they are.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *FileStore) recordMetric(operation string, start time.Time, n int64, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordMetric(StorageMetrics{
		OperationType: operation,
		Duration:      time.Since(start).Nanoseconds(),
		Bytes:         n,
		Success:       err == nil,
		Backend:       "filesystem",
		Error:         err,
	})
}
