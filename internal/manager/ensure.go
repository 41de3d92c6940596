package manager

import (
	"context"
	"fmt"
	"time"

	"relayd/internal/common/fsutil"
	"relayd/pkg/types"
)

// EnsureModelLoaded makes sure a client for modelID is resident. Manual
// loads pin the model; JIT loads (re)arm its idle timer. Remote models
// need no local client and return nil.
func (m *Manager) EnsureModelLoaded(ctx context.Context, modelID string, origin Origin) error {
	desc, ok := m.Resolve(modelID)
	if !ok {
		return ErrNotConfigured(modelID, "")
	}
	if !desc.IsLocal() {
		return nil
	}
	_, err := m.loadLocalClient(ctx, desc, origin, false)
	return err
}

// Acquire loads modelID if needed and waits for its generation slot. The
// returned lease must be released once the generation finishes.
func (m *Manager) Acquire(ctx context.Context, modelID string, origin Origin) (*Lease, error) {
	desc, ok := m.Resolve(modelID)
	if !ok {
		return nil, ErrNotConfigured(modelID, "")
	}
	if !desc.IsLocal() {
		return nil, ErrNotConfigured(desc.ID, "remote model has no local client")
	}
	e, err := m.loadLocalClient(ctx, desc, origin, true)
	if err != nil {
		return nil, err
	}
	release, err := m.beginGeneration(ctx, e)
	if err != nil {
		m.endUse(e)
		return nil, err
	}
	if !m.isCurrent(e) {
		release()
		m.endUse(e)
		return nil, ErrDependencyUnavailable("model " + e.id + " was unloaded while queued")
	}
	return &Lease{
		Client:     e.client,
		Descriptor: e.desc,
		release: func() {
			release()
			m.endUse(e)
		},
		current: func() bool { return m.isCurrent(e) },
	}, nil
}

func (m *Manager) isCurrent(e *entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[e.id] == e
}

// endUse drops one lease reference and restarts the idle countdown. The
// last lease on a draining entry completes its eviction.
func (m *Manager) endUse(e *entry) {
	m.mu.Lock()
	e.inflight--
	e.lastUsed = m.now()
	if m.entries[e.id] == e && !m.pinned[e.id] {
		m.armTimerLocked(e)
	}
	reason := ""
	if e.draining != "" && e.inflight == 0 {
		reason, e.draining = e.draining, ""
		m.draining--
	}
	m.mu.Unlock()
	if reason != "" {
		m.finishEvict(e, reason)
	}
}

// loadLocalClient returns the pooled entry for desc, building it on a miss.
// With lease set, the entry's in-flight count is raised under the same
// critical section as the lookup so an idle timer cannot evict it.
func (m *Manager) loadLocalClient(ctx context.Context, desc types.Descriptor, origin Origin, lease bool) (*entry, error) {
	for {
		m.mu.Lock()
		if e := m.entries[desc.ID]; e != nil {
			pinnedNow := m.touchLocked(e, origin)
			if lease {
				e.inflight++
			}
			m.mu.Unlock()
			if pinnedNow {
				m.publish(Event{Name: EventPinned, ModelID: desc.ID})
			}
			return e, nil
		}
		gen := m.descGen
		m.pending++
		m.mu.Unlock()

		// The flight runs detached from any one caller; each caller waits
		// on its own ctx.
		ch := m.sf.DoChan(desc.ID, func() (any, error) {
			m.mu.Lock()
			m.pending++
			m.mu.Unlock()
			defer func() {
				m.mu.Lock()
				m.pending--
				m.mu.Unlock()
			}()
			lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loadTimeout)
			defer cancel()
			return m.construct(lctx, desc, gen)
		})
		var err error
		select {
		case r := <-ch:
			err = r.Err
		case <-ctx.Done():
			m.mu.Lock()
			m.pending--
			m.mu.Unlock()
			return nil, ctx.Err()
		}

		m.mu.Lock()
		m.pending--
		m.mu.Unlock()
		if err != nil {
			m.stopLoopbackIfIdle()
			return nil, err
		}
		// Loop back to pick up the stored entry and apply this caller's origin.
	}
}

// touchLocked refreshes lastUsed and applies origin semantics. It reports
// whether the call newly pinned the model.
func (m *Manager) touchLocked(e *entry, origin Origin) bool {
	e.lastUsed = m.now()
	if origin == OriginManual {
		m.cancelTimerLocked(e)
		if !m.pinned[e.id] {
			m.pinned[e.id] = true
			return true
		}
		return false
	}
	if !m.pinned[e.id] {
		m.armTimerLocked(e)
	}
	return false
}

// construct builds and stores the client for desc. It runs outside the
// pool lock and is deduplicated per id by the singleflight group.
func (m *Manager) construct(ctx context.Context, desc types.Descriptor, gen uint64) (*entry, error) {
	// A flight that finished between our miss and this one already stored it.
	m.mu.Lock()
	if e := m.entries[desc.ID]; e != nil {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()
	kind, ok := desc.Kind.(types.LocalKind)
	if !ok {
		return nil, ErrNotConfigured(desc.ID, "remote model has no local client")
	}
	if kind.Format != types.FormatGGUF {
		return nil, unsupportedFormatError{format: string(kind.Format)}
	}
	lp := m.loadParamsFor(desc, kind)
	if needsLoopback(desc, kind) {
		if err := m.ensureLoopback(ctx, lp); err != nil {
			return nil, err
		}
	}

	m.publish(Event{Name: EventLoadStart, ModelID: desc.ID, Fields: map[string]any{"path": kind.ModelRef}})
	m.log.Info().Str("model", desc.ID).Str("path", kind.ModelRef).Msg("loading model")
	start := time.Now()
	client, err := m.factory.NewClient(ctx, desc, lp)
	if err != nil {
		loadsTotal.WithLabelValues("error").Inc()
		m.log.Error().Err(err).Str("model", desc.ID).Msg("load failed")
		m.publish(Event{Name: EventLoadError, ModelID: desc.ID, Fields: map[string]any{"error": err.Error()}})
		return nil, fmt.Errorf("load %s: %w", desc.ID, err)
	}
	loadDuration.Observe(time.Since(start).Seconds())

	m.mu.Lock()
	if m.descGen != gen {
		if cur, ok := m.descs[desc.ID]; !ok || cur.Kind != desc.Kind {
			m.mu.Unlock()
			m.log.Warn().Str("model", desc.ID).Msg("descriptor changed during load; discarding client")
			m.discard(client)
			return nil, ErrNotConfigured(desc.ID, "descriptor removed during load")
		}
	}
	e := &entry{
		id:       desc.ID,
		desc:     desc,
		client:   client,
		lastUsed: m.now(),
		genCh:    make(chan struct{}, 1),
		queueCh:  make(chan struct{}, m.maxQueueDepth),
	}
	m.entries[desc.ID] = e
	m.loadsTotal++
	// Callers re-touch the entry; this covers a flight all of them left.
	m.armTimerLocked(e)
	var victims []*entry
	if m.policy.OnlyKeepLastJITModel {
		for _, id := range keepLastJITVictims(m.loadedIDsLocked(), m.pinned, desc.ID) {
			if v := m.retireLocked(id, ReasonKeepLast); v != nil {
				victims = append(victims, v)
			}
		}
	}
	m.mu.Unlock()

	loadsTotal.WithLabelValues("ok").Inc()
	loadedGauge.Inc()
	m.log.Info().Str("model", desc.ID).Dur("took", time.Since(start)).Msg("model ready")
	m.publish(Event{Name: EventLoadReady, ModelID: desc.ID})
	for _, v := range victims {
		m.finishEvict(v, ReasonKeepLast)
	}
	return e, nil
}

// discard releases a client that never made it into the pool.
func (m *Manager) discard(c Client) {
	ctx, cancel := context.WithTimeout(context.Background(), m.unloadTimeout)
	defer cancel()
	if err := c.UnloadAndWait(ctx); err != nil {
		m.log.Warn().Err(err).Msg("discard client")
	}
}

func (m *Manager) loadedIDsLocked() []string {
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	return ids
}

// loadParamsFor layers descriptor settings over the global llama config.
func (m *Manager) loadParamsFor(desc types.Descriptor, kind types.LocalKind) LoadParams {
	s := desc.Settings
	lp := LoadParams{
		ModelPath:      kind.ModelRef,
		Format:         kind.Format,
		Threads:        firstPositive(s.Threads, m.llama.Threads),
		ContextLength:  firstPositive(s.ContextLength, m.llama.ContextLength),
		GPULayers:      firstPositive(s.GPULayers, m.llama.GPULayers),
		BatchSize:      s.BatchSize,
		FlashAttention: s.FlashAttention,
		KVCache:        s.KVCache,
		Embedding:      IsEmbeddingModel(desc),
	}
	if kind.ProjectorRef != "" && fsutil.IsFile(kind.ProjectorRef) {
		lp.ProjectorPath = kind.ProjectorRef
	}
	return lp
}

// IsEmbeddingModel reports whether desc is tagged as an embedding model.
func IsEmbeddingModel(desc types.Descriptor) bool {
	return desc.HasTag("embedding") || desc.HasTag("embeddings")
}

// needsLoopback reports whether desc is multimodal and needs the auxiliary server.
func needsLoopback(desc types.Descriptor, kind types.LocalKind) bool {
	if desc.HasTag("vision") || desc.HasTag("multimodal") {
		return true
	}
	return kind.ProjectorRef != "" && fsutil.IsFile(kind.ProjectorRef)
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
