package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"relayd/internal/relay"
	"relayd/pkg/types"
)

const (
	framingSSE    = "sse"
	framingNDJSON = "ndjson"
)

var errGenerationTimeout = fmt.Errorf("generation timed out: %w", context.DeadlineExceeded)

// frameStream writes a streamed generation as SSE events or NDJSON lines.
// Headers go out with the first frame, so errors raised before any output
// can still be answered with a JSON error status.
type frameStream struct {
	w       http.ResponseWriter
	out     io.Writer
	flush   func()
	framing string
	started bool
}

func newFrameStream(w http.ResponseWriter, l *reqLog, framing string) *frameStream {
	s := &frameStream{w: w, out: w, flush: func() {}, framing: framing}
	if f, ok := w.(http.Flusher); ok {
		s.flush = f.Flush
	}
	if l.debugStream() {
		s.out = io.MultiWriter(w, &loggingLineWriter{path: l.path})
	}
	return s
}

func (s *frameStream) begin() {
	if s.started {
		return
	}
	s.started = true
	streamsTotal.WithLabelValues(s.framing).Inc()
	h := s.w.Header()
	if s.framing == framingSSE {
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
	} else {
		h.Set("Content-Type", "application/x-ndjson")
	}
	s.w.WriteHeader(http.StatusOK)
}

func (s *frameStream) send(v any) error {
	s.begin()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if s.framing == framingSSE {
		_, err = fmt.Fprintf(s.out, "data: %s\n\n", b)
	} else {
		_, err = s.out.Write(append(b, '\n'))
	}
	if err != nil {
		return err
	}
	s.flush()
	return nil
}

// done terminates an SSE stream. NDJSON streams end with their final object.
func (s *frameStream) done() {
	if s.framing != framingSSE {
		return
	}
	s.begin()
	_, _ = io.WriteString(s.out, "data: [DONE]\n\n")
	s.flush()
}

// fail reports err and returns the status it maps to. Once frames have gone
// out the error becomes a final frame.
func (s *frameStream) fail(err error) int {
	if !s.started {
		return writeServiceError(s.w, err)
	}
	status := statusForError(err)
	_ = s.send(types.ErrorResponse{Error: err.Error(), Code: status})
	s.done()
	return status
}

// timedOut reports whether a cancelled result was caused by the generation
// timeout rather than the caller going away.
func timedOut(ctx context.Context, r *http.Request, res relay.Result) bool {
	return res.FinishReason == types.FinishCancelled &&
		errors.Is(ctx.Err(), context.DeadlineExceeded) &&
		r.Context().Err() == nil
}
