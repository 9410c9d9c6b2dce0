// Package ratelimit paces HTTP requests per host and backs off hosts that
// keep failing.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// errorThreshold consecutive failures put a host in backoff.
	errorThreshold = 3
	backoffStep    = 30 * time.Second
	maxBackoff     = 5 * time.Minute
)

// HostLimiter gives every host its own token bucket. It is safe for
// concurrent use.
type HostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*hostLimiter

	// BackoffStep is multiplied by the error count once a host crosses the
	// error threshold.
	BackoffStep time.Duration
	MaxBackoff  time.Duration
}

type hostLimiter struct {
	limiter         *rate.Limiter
	lastRequestTime time.Time
	backoffUntil    time.Time
	requestCount    int64
	errorCount      int64
}

// NewHostLimiter allows requestsPerSec per host with the given burst. A
// non-positive rate disables pacing.
func NewHostLimiter(requestsPerSec float64, burst int) *HostLimiter {
	limit := rate.Inf
	if requestsPerSec > 0 {
		limit = rate.Limit(requestsPerSec)
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limit:       limit,
		burst:       burst,
		limiters:    make(map[string]*hostLimiter),
		BackoffStep: backoffStep,
		MaxBackoff:  maxBackoff,
	}
}

func (r *HostLimiter) host(name string) *hostLimiter {
	l, ok := r.limiters[name]
	if !ok {
		l = &hostLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[name] = l
	}
	return l
}

// Wait blocks until a request to host may be sent.
func (r *HostLimiter) Wait(ctx context.Context, host string) error {
	r.mu.Lock()
	l := r.host(host)
	backoff := time.Until(l.backoffUntil)
	r.mu.Unlock()

	if backoff > 0 {
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	l.lastRequestTime = time.Now()
	l.requestCount++
	r.mu.Unlock()
	return nil
}

// RecordError counts a failed request and puts the host in backoff once
// the failures pass the threshold.
func (r *HostLimiter) RecordError(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.host(host)
	l.errorCount++
	if l.errorCount > errorThreshold {
		backoff := time.Duration(l.errorCount) * r.BackoffStep
		if backoff > r.MaxBackoff {
			backoff = r.MaxBackoff
		}
		l.backoffUntil = time.Now().Add(backoff)
	}
}

// RecordSuccess resets the error count of host.
func (r *HostLimiter) RecordSuccess(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[host]; ok {
		l.errorCount = 0
	}
}

// Stats returns a snapshot per host.
func (r *HostLimiter) Stats() map[string]HostStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]HostStats, len(r.limiters))
	for name, l := range r.limiters {
		stats[name] = HostStats{
			RequestCount:    l.requestCount,
			ErrorCount:      l.errorCount,
			LastRequestTime: l.lastRequestTime,
			InBackoff:       time.Now().Before(l.backoffUntil),
			BackoffUntil:    l.backoffUntil,
		}
	}
	return stats
}

// HostStats contains statistics for a host
type HostStats struct {
	RequestCount    int64     `json:"request_count"`
	ErrorCount      int64     `json:"error_count"`
	LastRequestTime time.Time `json:"last_request_time"`
	InBackoff       bool      `json:"in_backoff"`
	BackoffUntil    time.Time `json:"backoff_until"`
}
