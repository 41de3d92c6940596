package httpapi

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"relayd/internal/manager"
)

func TestIncrementBackpressure_IncrementsCounter(t *testing.T) {
	baseline := testutil.ToFloat64(backpressureTotal.WithLabelValues("queue"))
	IncrementBackpressure("queue")
	IncrementBackpressure("queue")
	got := testutil.ToFloat64(backpressureTotal.WithLabelValues("queue"))
	if got < baseline+2 {
		t.Fatalf("expected backpressure counter >= %v, got %v", baseline+2, got)
	}

	// Empty reason should default to "unspecified"
	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified"))
	IncrementBackpressure("")
	after := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified"))
	if after < before+1 {
		t.Fatalf("expected unspecified reason to increment by at least 1: before=%v after=%v", before, after)
	}
}

func TestTooBusyCountsBackpressure(t *testing.T) {
	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("queue"))
	svc := &mockService{err: manager.ErrTooBusy("m")}
	w := postJSON(NewMux(svc), "/v1/chat/completions", `{"model":"m","messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != 429 {
		t.Fatalf("status=%d", w.Code)
	}
	if after := testutil.ToFloat64(backpressureTotal.WithLabelValues("queue")); after < before+1 {
		t.Fatalf("backpressure not counted: before=%v after=%v", before, after)
	}
}

func TestStreamsCountedByFraming(t *testing.T) {
	before := testutil.ToFloat64(streamsTotal.WithLabelValues(framingNDJSON))
	svc := &mockService{deltas: []string{"a"}}
	_ = postJSON(NewMux(svc), "/api/generate", `{"model":"m","prompt":"p"}`)
	if after := testutil.ToFloat64(streamsTotal.WithLabelValues(framingNDJSON)); after != before+1 {
		t.Fatalf("streams_total: before=%v after=%v", before, after)
	}
}
