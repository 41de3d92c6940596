package manager

import (
	"context"
	"time"
)

// beginGeneration admits one generation on e: a queue slot first, then the
// single in-flight slot. Both phases share one MaxWait budget. The returned
// release func frees both slots.
func (m *Manager) beginGeneration(ctx context.Context, e *entry) (func(), error) {
	noop := func() {}
	if err := ctx.Err(); err != nil {
		return noop, err
	}
	start := time.Now()
	deadline := time.NewTimer(m.maxWait)
	defer deadline.Stop()

	select {
	case e.queueCh <- struct{}{}:
	case <-ctx.Done():
		observeAdmission("cancelled", start)
		return noop, ctx.Err()
	case <-deadline.C:
		observeAdmission("too_busy", start)
		return noop, ErrTooBusy(e.id)
	}

	select {
	case e.genCh <- struct{}{}:
		observeAdmission("admitted", start)
		return func() { <-e.genCh; <-e.queueCh }, nil
	case <-ctx.Done():
		<-e.queueCh
		observeAdmission("cancelled", start)
		return noop, ctx.Err()
	case <-deadline.C:
		<-e.queueCh
		observeAdmission("too_busy", start)
		return noop, ErrTooBusy(e.id)
	}
}

func observeAdmission(outcome string, start time.Time) {
	admissionWait.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
