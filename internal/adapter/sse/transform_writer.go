package sse

import (
	"bytes"
	"context"
	"net/http"

	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/core/ports"
)

var dataPrefix = []byte("data: ")
var doneMarker = []byte("[DONE]")

// TransformingWriter wraps the downstream http.ResponseWriter for a
// streamed response whose provider dialect differs from the ingress
// dialect. Manager.Pump writes raw upstream bytes at arbitrary chunk
// boundaries, so this buffers until a full line is seen before deciding
// whether it is an SSE data frame to run through the transformer chain's
// response legs; every other line (event:, comments, blank separators)
// passes through untouched.
type TransformingWriter struct {
	http.ResponseWriter

	ctx          context.Context
	rc           *domain.RequestContext
	chain        ports.TransformerChain
	transformers []ports.Transformer

	buf []byte
}

func NewTransformingWriter(w http.ResponseWriter, ctx context.Context, rc *domain.RequestContext, chain ports.TransformerChain, transformers []ports.Transformer) *TransformingWriter {
	return &TransformingWriter{ResponseWriter: w, ctx: ctx, rc: rc, chain: chain, transformers: transformers}
}

func (tw *TransformingWriter) Write(p []byte) (int, error) {
	tw.buf = append(tw.buf, p...)
	for {
		idx := bytes.IndexByte(tw.buf, '\n')
		if idx < 0 {
			break
		}
		line := tw.buf[:idx+1]
		tw.buf = tw.buf[idx+1:]
		if err := tw.emitLine(line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (tw *TransformingWriter) emitLine(line []byte) error {
	trimmed := bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(trimmed, dataPrefix) {
		_, err := tw.ResponseWriter.Write(line)
		return err
	}

	payload := trimmed[len(dataPrefix):]
	if bytes.Equal(payload, doneMarker) {
		_, err := tw.ResponseWriter.Write(line)
		return err
	}

	unified, err := tw.chain.RunResponseOut(tw.ctx, tw.rc, tw.transformers, payload)
	if err != nil {
		return err
	}
	out, err := tw.chain.RunResponseIn(tw.ctx, tw.rc, tw.transformers, unified)
	if err != nil {
		return err
	}

	rewritten := append(append(dataPrefix[:len(dataPrefix):len(dataPrefix)], out...), '\n')
	_, err = tw.ResponseWriter.Write(rewritten)
	return err
}

// Flush satisfies http.Flusher so Manager.Pump's heartbeat/backpressure
// loop keeps flushing through the wrapper; it is a no-op if the
// underlying ResponseWriter doesn't support it.
func (tw *TransformingWriter) Flush() {
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Close flushes any trailing partial line left in the buffer once the
// upstream stream ends without a final newline.
func (tw *TransformingWriter) Close() error {
	if len(tw.buf) == 0 {
		return nil
	}
	line := tw.buf
	tw.buf = nil
	return tw.emitLine(line)
}
