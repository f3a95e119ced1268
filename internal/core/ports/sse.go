package ports

import (
	"context"
	"io"
	"net/http"
	"time"
)

// StreamManager pumps an upstream SSE response to the client, handling
// heartbeats, backpressure, read timeouts and client-disconnect
// detection without leaking the upstream connection.
type StreamManager interface {
	Pump(ctx context.Context, w http.ResponseWriter, upstreamBody io.ReadCloser, opts StreamOptions) StreamResult
}

type StreamOptions struct {
	HeartbeatInterval       time.Duration
	ReadTimeout             time.Duration
	DisconnectByteThreshold int
	DisconnectTimeThreshold time.Duration

	// BackpressureTimeout bounds how long a write to the downstream sink
	// may block before the stream is aborted. Zero uses a 60s default.
	BackpressureTimeout time.Duration

	// EnableStaggeredDetection turns on the onStaggeredDetected callback
	// below; MaxInterChunkDelay/MinTokenRate gate when it fires.
	EnableStaggeredDetection bool
	MaxInterChunkDelay       time.Duration
	MinTokenRate             float64
	OnStaggeredDetected      func()

	// ReissueUpstream, when set, is invoked on a transport-level upstream
	// read error to obtain a fresh upstream body and keep pumping rather
	// than aborting the client's stream. MaxRetries bounds how many times
	// it may be called per Pump call; zero uses a default of 2.
	ReissueUpstream func(ctx context.Context) (io.ReadCloser, error)
	MaxRetries      int
}

type StreamResult struct {
	BytesWritten         int
	ClientDisconnected   bool
	BytesAfterDisconnect int
	Reconnects           int
	Err                  error
}
