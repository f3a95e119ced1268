// Package metrics implements ports.MetricsCollector: an append-only
// per-request recorder with a bounded recent-requests ring and a
// reservoir-sampled latency percentile tracker. RecordRequest enforces
// the size cap on insert; a single background sweeper evicts records
// older than the retention window.
package metrics

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/olla-run/olla/internal/core/ports"
)

const (
	defaultRetention  = 1 * time.Hour
	defaultMaxRecent  = 500
	defaultSweepEvery = 5 * time.Minute
)

type Collector struct {
	mu     sync.Mutex
	recent []ports.RequestRecord // ring buffer, oldest first

	totalRequests      *xsync.Counter
	successfulRequests *xsync.Counter
	failedRequests     *xsync.Counter
	rateLimited        *xsync.Counter
	circuitRejections  *xsync.Counter

	latency *percentileTracker

	retention time.Duration
	maxRecent int

	stop chan struct{}
}

func New() *Collector {
	c := &Collector{
		recent:             make([]ports.RequestRecord, 0, defaultMaxRecent),
		totalRequests:      xsync.NewCounter(),
		successfulRequests: xsync.NewCounter(),
		failedRequests:     xsync.NewCounter(),
		rateLimited:        xsync.NewCounter(),
		circuitRejections:  xsync.NewCounter(),
		latency:            newPercentileTracker(200),
		retention:          defaultRetention,
		maxRecent:          defaultMaxRecent,
		stop:               make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *Collector) Close() { close(c.stop) }

func (c *Collector) RecordRequest(rec ports.RequestRecord) {
	c.totalRequests.Inc()
	if rec.Err == "" {
		c.successfulRequests.Inc()
	} else {
		c.failedRequests.Inc()
	}
	if rec.StatusCode == 429 {
		c.rateLimited.Inc()
	}
	if rec.StatusCode == 503 {
		c.circuitRejections.Inc()
	}
	c.latency.Add(rec.Latency.Milliseconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, rec)
	if len(c.recent) > c.maxRecent {
		c.recent = c.recent[len(c.recent)-c.maxRecent:]
	}
}

func (c *Collector) Recent(limit int) []ports.RequestRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > len(c.recent) {
		limit = len(c.recent)
	}
	out := make([]ports.RequestRecord, limit)
	copy(out, c.recent[len(c.recent)-limit:])
	return out
}

func (c *Collector) Aggregate() ports.MetricsSnapshot {
	p50, p95, p99 := c.latency.Percentiles()
	return ports.MetricsSnapshot{
		TotalRequests:      c.totalRequests.Value(),
		SuccessfulRequests: c.successfulRequests.Value(),
		FailedRequests:     c.failedRequests.Value(),
		RateLimited:        c.rateLimited.Value(),
		CircuitRejections:  c.circuitRejections.Value(),
		P50Latency:         time.Duration(p50) * time.Millisecond,
		P95Latency:         time.Duration(p95) * time.Millisecond,
		P99Latency:         time.Duration(p99) * time.Millisecond,
	}
}

// sweepLoop evicts recent-request records past the retention window.
// The ring buffer's size cap already bounds memory; this additionally
// bounds how long a stale record lingers in /metrics/recent.
func (c *Collector) sweepLoop() {
	ticker := time.NewTicker(defaultSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Collector) sweep() {
	cutoff := time.Now().Add(-c.retention)

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := 0
	for idx < len(c.recent) && c.recent[idx].StartTime.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		c.recent = c.recent[idx:]
	}
}
