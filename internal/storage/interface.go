package storage

import (
	"context"
	"io"
)

// Store persists the downloaded course tree.
type Store interface {
	Root() string
	Exists(path string) bool
	WriteFile(ctx context.Context, path string, data []byte) error
	WriteStream(ctx context.Context, path string, r io.Reader) (int64, error)
	WriteJSON(ctx context.Context, path string, v any) error
}

// Snapshotter records the state of the output tree.
type Snapshotter interface {
	Snapshot(ctx context.Context, message string) (string, error)
}

// StorageMetrics provides telemetry for storage operations
type StorageMetrics struct {
	OperationType string
	Duration      int64 // nanoseconds
	Bytes         int64
	Success       bool
	Backend       string
	Error         error
}

// MetricsCollector receives storage operation metrics
type MetricsCollector interface {
	RecordMetric(metric StorageMetrics)
}
