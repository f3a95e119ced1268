// Package sse implements ports.StreamManager: pumping an upstream SSE
// response to the client with heartbeats, backpressure timeouts, a
// per-chunk read timeout, client-disconnect tolerance, staggered-stream
// detection and mid-stream reconnect.
package sse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/olla-run/olla/internal/core/ports"
	"github.com/olla-run/olla/internal/logger"
)

const (
	bufferSize        = 32 * 1024
	defaultMaxRetries = 2
	staggerMinChunks  = 3
)

// staggerMinUptime is the minimum stream age before staggered-stream
// detection can fire; a var (not a const) so tests can shrink it rather
// than sleeping out a real 5s window.
var staggerMinUptime = 5 * time.Second

type Manager struct {
	logger *logger.StyledLogger
}

func New(log *logger.StyledLogger) *Manager {
	return &Manager{logger: log}
}

type streamState struct {
	disconnectedAt       time.Time
	totalBytes           int
	bytesAfterDisconnect int
	clientDisconnected   bool

	startedAt     time.Time
	chunkCount    int
	lastChunkAt   time.Time
	staggerFired  bool

	reconnects int
}

// Pump reads from upstreamBody and writes to w until EOF, a read
// timeout, or ctx cancellation (the request context, which the HTTP
// server cancels on client disconnect). A disconnect does not stop the
// pump outright: it starts a grace window (byte and time bounded by
// opts) during which upstream data is still drained and discarded, so
// the upstream connection unwinds cleanly instead of being cut mid-read.
// Heartbeats (":ping\n\n" comments) are interleaved on the configured
// interval so intermediary proxies don't idle-timeout the connection
// during long silences between chunks; heartbeats never count as chunk
// activity for staggered-stream detection.
func (m *Manager) Pump(ctx context.Context, w http.ResponseWriter, upstreamBody io.ReadCloser, opts ports.StreamOptions) ports.StreamResult {
	flusher, canFlush := w.(http.Flusher)

	now := time.Now()
	state := &streamState{startedAt: now, lastChunkAt: now}
	buf := make([]byte, bufferSize)

	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 120 * time.Second
	}

	backpressureTimeout := opts.BackpressureTimeout
	if backpressureTimeout <= 0 {
		backpressureTimeout = 60 * time.Second
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	reader := upstreamBody
	defer reader.Close()

	readCh := make(chan readResult, 1)
	m.readOnce(reader, buf, readCh)

	readDeadline := time.NewTimer(readTimeout)
	defer readDeadline.Stop()

	for {
		select {
		case <-ctx.Done():
			m.onDisconnect(state)
			if shouldStopAfterDisconnect(state, opts) {
				return finish(state, ctx.Err())
			}
			// fall through to keep draining upstream during the grace window

		case <-readDeadline.C:
			return finish(state, errReadTimeout)

		case <-ticker.C:
			if state.clientDisconnected {
				continue
			}
			if err := m.writeWithTimeout(w, []byte(":ping\n\n"), backpressureTimeout); err != nil {
				return finish(state, err)
			}
			if canFlush {
				flusher.Flush()
			}

		case res := <-readCh:
			if !readDeadline.Stop() {
				<-readDeadline.C
			}
			readDeadline.Reset(readTimeout)

			if res.n > 0 {
				if state.clientDisconnected {
					state.bytesAfterDisconnect += res.n
					if shouldStopAfterDisconnect(state, opts) {
						return finish(state, nil)
					}
				} else {
					m.recordChunk(state, opts)
					if err := m.writeWithTimeout(w, buf[:res.n], backpressureTimeout); err != nil {
						return finish(state, err)
					}
					state.totalBytes += res.n
					if canFlush {
						flusher.Flush()
					}
				}
			}

			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return finish(state, nil)
				}
				if opts.ReissueUpstream != nil && state.reconnects < maxRetries && isReconnectable(res.err) {
					newReader, rerr := m.reconnect(ctx, reader, state, opts)
					if rerr != nil {
						return finish(state, rerr)
					}
					reader = newReader
					buf = make([]byte, bufferSize)
					m.readOnce(reader, buf, readCh)
					continue
				}
				return finish(state, res.err)
			}
			buf = make([]byte, bufferSize)
			m.readOnce(reader, buf, readCh)
		}
	}
}

var errReadTimeout = errors.New("sse: read timeout waiting for upstream chunk")
var errBackpressureTimeout = errors.New("sse: backpressure timeout writing to client")

type readResult struct {
	n   int
	err error
}

func (m *Manager) readOnce(r io.Reader, buf []byte, out chan<- readResult) {
	go func() {
		n, err := r.Read(buf)
		out <- readResult{n: n, err: err}
	}()
}

// writeWithTimeout bounds how long a single write to the downstream
// sink may block: a slow or stalled client's TCP window filling up
// would otherwise hold the upstream connection open indefinitely.
func (m *Manager) writeWithTimeout(w io.Writer, p []byte, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		_, err := w.Write(p)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errBackpressureTimeout
	}
}

func (m *Manager) recordChunk(state *streamState, opts ports.StreamOptions) {
	now := time.Now()
	gap := now.Sub(state.lastChunkAt)
	state.chunkCount++

	if opts.EnableStaggeredDetection && !state.staggerFired && opts.OnStaggeredDetected != nil {
		if state.chunkCount >= staggerMinChunks && now.Sub(state.startedAt) >= staggerMinUptime {
			maxGap := opts.MaxInterChunkDelay
			if maxGap > 0 && gap > maxGap && m.tokenRate(state, now) < opts.MinTokenRate {
				state.staggerFired = true
				opts.OnStaggeredDetected()
			}
		}
	}

	state.lastChunkAt = now
}

// tokenRate approximates token throughput as chunks-per-second, the
// closest signal this layer has without decoding the wire format into
// actual tokens.
func (m *Manager) tokenRate(state *streamState, now time.Time) float64 {
	elapsed := now.Sub(state.startedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(state.chunkCount) / elapsed
}

// reconnect waits the spec'd backoff, closes the stale reader and asks
// the caller-supplied closure for a fresh upstream body.
func (m *Manager) reconnect(ctx context.Context, stale io.ReadCloser, state *streamState, opts ports.StreamOptions) (io.ReadCloser, error) {
	stale.Close()
	state.reconnects++

	wait := time.Duration(state.reconnects) * time.Second
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	fresh, err := opts.ReissueUpstream(ctx)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// isReconnectable is deliberately permissive: any non-EOF read error
// reaching this point already survived the initial upstream dial (that
// failure is classified separately before the stream starts), so a
// reset/timeout/premature-close mid-stream is exactly the reconnect
// case spec'd; anything else still gets one retry budget rather than a
// hand-maintained list of transient-vs-fatal error strings.
func isReconnectable(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func (m *Manager) onDisconnect(state *streamState) {
	if !state.clientDisconnected {
		state.clientDisconnected = true
		state.disconnectedAt = time.Now()
	}
}

func shouldStopAfterDisconnect(state *streamState, opts ports.StreamOptions) bool {
	if opts.DisconnectByteThreshold > 0 && state.bytesAfterDisconnect > opts.DisconnectByteThreshold {
		return true
	}
	if opts.DisconnectTimeThreshold > 0 && time.Since(state.disconnectedAt) > opts.DisconnectTimeThreshold {
		return true
	}
	return false
}

func finish(state *streamState, err error) ports.StreamResult {
	return ports.StreamResult{
		BytesWritten:         state.totalBytes,
		ClientDisconnected:   state.clientDisconnected,
		BytesAfterDisconnect: state.bytesAfterDisconnect,
		Reconnects:           state.reconnects,
		Err:                  err,
	}
}
