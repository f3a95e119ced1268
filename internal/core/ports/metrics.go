package ports

import "time"

// MetricsCollector records per-request outcomes append-only. The size
// cap is enforced as records are added (oldest dropped first) and a
// single background sweeper evicts records older than the retention
// window, mirroring the olla proxy's stats collector shape.
type MetricsCollector interface {
	RecordRequest(rec RequestRecord)
	Recent(limit int) []RequestRecord
	Aggregate() MetricsSnapshot
}

type RequestRecord struct {
	RequestID    string
	StartTime    time.Time
	ProviderID   string
	Model        string
	Scenario     string
	Latency      time.Duration
	BytesWritten int
	StatusCode   int
	Raced        bool
	FailedOver   bool
	Err          string
}

type MetricsSnapshot struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	RateLimited        int64
	CircuitRejections  int64
	P50Latency         time.Duration
	P95Latency         time.Duration
	P99Latency         time.Duration
}
