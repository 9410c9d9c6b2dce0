package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SimpleMetricsCollector keeps storage metrics in memory for the run summary.
type SimpleMetricsCollector struct {
	metrics []StorageMetrics
	mutex   sync.RWMutex
}

// NewSimpleMetricsCollector creates a new simple metrics collector
func NewSimpleMetricsCollector() *SimpleMetricsCollector {
	return &SimpleMetricsCollector{
		metrics: make([]StorageMetrics, 0),
	}
}

// RecordMetric records a storage operation metric
func (s *SimpleMetricsCollector) RecordMetric(metric StorageMetrics) {
	s.mutex.Lock()
	s.metrics = append(s.metrics, metric)
	s.mutex.Unlock()

	event := log.Debug().
		Str("operation", metric.OperationType).
		Str("backend", metric.Backend).
		Int64("duration_ns", metric.Duration).
		Int64("bytes", metric.Bytes).
		Bool("success", metric.Success)
	if metric.Error != nil {
		event = event.Err(metric.Error)
	}
	event.Msg("Storage operation metric recorded")
}

// GetMetrics returns all collected metrics
func (s *SimpleMetricsCollector) GetMetrics() []StorageMetrics {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]StorageMetrics, len(s.metrics))
	copy(result, s.metrics)
	return result
}

// Summary groups the metrics by backend and operation.
func (s *SimpleMetricsCollector) Summary() MetricsSummary {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	summary := MetricsSummary{ByBackend: make(map[string]map[string]*OperationStats)}
	for _, metric := range s.metrics {
		ops := summary.ByBackend[metric.Backend]
		if ops == nil {
			ops = make(map[string]*OperationStats)
			summary.ByBackend[metric.Backend] = ops
		}
		stats := ops[metric.OperationType]
		if stats == nil {
			stats = &OperationStats{}
			ops[metric.OperationType] = stats
		}

		stats.Count++
		stats.TotalDuration += metric.Duration
		stats.Bytes += metric.Bytes
		if metric.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		if stats.Count == 1 || metric.Duration < stats.MinDuration {
			stats.MinDuration = metric.Duration
		}
		if metric.Duration > stats.MaxDuration {
			stats.MaxDuration = metric.Duration
		}
		stats.AvgDuration = stats.TotalDuration / int64(stats.Count)

		summary.TotalOperations++
		summary.TotalBytes += metric.Bytes
	}
	return summary
}

// ClearMetrics clears all collected metrics
func (s *SimpleMetricsCollector) ClearMetrics() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.metrics = make([]StorageMetrics, 0)
}

// MetricsSummary aggregates the collected metrics.
type MetricsSummary struct {
	TotalOperations int                                   `json:"total_operations"`
	TotalBytes      int64                                 `json:"total_bytes"`
	ByBackend       map[string]map[string]*OperationStats `json:"by_backend"`
}

// OperationStats holds statistics for a specific operation type
type OperationStats struct {
	Count         int   `json:"count"`
	SuccessCount  int   `json:"success_count"`
	FailureCount  int   `json:"failure_count"`
	Bytes         int64 `json:"bytes"`
	TotalDuration int64 `json:"total_duration_ns"`
	MinDuration   int64 `json:"min_duration_ns"`
	MaxDuration   int64 `json:"max_duration_ns"`
	AvgDuration   int64 `json:"avg_duration_ns"`
}

// GetSuccessRate returns the success rate as a percentage
func (o *OperationStats) GetSuccessRate() float64 {
	if o.Count == 0 {
		return 0.0
	}
	return float64(o.SuccessCount) / float64(o.Count) * 100.0
}

// GetAvgDurationMs returns the average duration in milliseconds
func (o *OperationStats) GetAvgDurationMs() float64 {
	return float64(o.AvgDuration) / float64(time.Millisecond)
}
