package manager

import (
	"context"
	"time"
)

// armTimerLocked (re)starts the idle countdown for e. Pinned entries and
// policies without auto-unload never carry a timer.
func (m *Manager) armTimerLocked(e *entry) {
	m.cancelTimerLocked(e)
	if !m.policy.timersEnabled() || m.pinned[e.id] {
		return
	}
	id, gen := e.id, e.timerGen
	e.timer = time.AfterFunc(m.policy.IdleTTL, func() { m.onIdleTimer(id, gen) })
}

func (m *Manager) cancelTimerLocked(e *entry) {
	e.timerGen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// onIdleTimer evicts id unless the timer was superseded. A model still in
// use gets a fresh countdown instead.
func (m *Manager) onIdleTimer(id string, gen uint64) {
	m.mu.Lock()
	e := m.entries[id]
	if e == nil || e.timerGen != gen || m.pinned[id] {
		m.mu.Unlock()
		return
	}
	if e.inflight > 0 {
		m.armTimerLocked(e)
		m.mu.Unlock()
		return
	}
	m.detachLocked(id)
	m.mu.Unlock()
	m.log.Debug().Str("model", id).Msg("idle ttl elapsed")
	m.finishEvict(e, ReasonIdleTTL)
}

// detachLocked removes id from the pool and cancels its timer. The caller
// must finish the eviction with finishEvict after releasing the lock.
func (m *Manager) detachLocked(id string) *entry {
	e := m.entries[id]
	if e == nil {
		return nil
	}
	delete(m.entries, id)
	m.cancelTimerLocked(e)
	m.evictionsTotal++
	return e
}

// retireLocked detaches id like detachLocked. An entry with leases still
// out is marked draining and nil is returned; endUse finishes it.
func (m *Manager) retireLocked(id, reason string) *entry {
	e := m.detachLocked(id)
	if e == nil {
		return nil
	}
	if e.inflight > 0 {
		e.draining = reason
		m.draining++
		m.log.Debug().Str("model", id).Str("reason", reason).Int("inflight", e.inflight).Msg("draining before unload")
		return nil
	}
	return e
}

// finishEvict unloads a detached client. Failures are logged, never returned.
func (m *Manager) finishEvict(e *entry, reason string) {
	if e == nil {
		return
	}
	e.client.CancelActive()
	ctx, cancel := context.WithTimeout(context.Background(), m.unloadTimeout)
	err := e.client.UnloadAndWait(ctx)
	cancel()
	if err != nil {
		m.log.Warn().Err(err).Str("model", e.id).Str("reason", reason).Msg("unload failed")
		m.publish(Event{Name: EventUnloadError, ModelID: e.id, Fields: map[string]any{"error": err.Error()}})
	}
	evictionsTotal.WithLabelValues(reason).Inc()
	loadedGauge.Dec()
	m.log.Info().Str("model", e.id).Str("reason", reason).Msg("model evicted")
	m.publish(Event{Name: EventEvicted, ModelID: e.id, Fields: map[string]any{"reason": reason}})
	m.stopLoopbackIfIdle()
}

// UnloadModel unpins modelID and evicts it if loaded.
func (m *Manager) UnloadModel(modelID string) error {
	id := modelID
	desc, known := m.Resolve(modelID)
	if known {
		id = desc.ID
	}
	m.mu.Lock()
	wasPinned := m.pinned[id]
	delete(m.pinned, id)
	loaded := m.entries[id] != nil
	e := m.retireLocked(id, ReasonUnload)
	m.mu.Unlock()
	if e != nil {
		m.finishEvict(e, ReasonUnload)
		return nil
	}
	if loaded {
		return nil
	}
	m.stopLoopbackIfIdle()
	if !known && !wasPinned {
		return ErrNotConfigured(modelID, "")
	}
	return nil
}
