package manager

import (
	"sort"
	"time"

	"relayd/pkg/types"
)

// Status returns the pool's contribution to the /status payload. Session
// and client counts are filled in by the caller.
func (m *Manager) Status() types.StatusResponse {
	m.mu.Lock()
	loaded := make([]types.LoadedModelStatus, 0, len(m.entries))
	for id, e := range m.entries {
		loaded = append(loaded, types.LoadedModelStatus{
			ModelID:       id,
			Pinned:        m.pinned[id],
			LastUsed:      e.lastUsed.Unix(),
			TimerArmed:    e.timer != nil,
			Inflight:      e.inflight,
			QueueLen:      len(e.queueCh),
			MaxQueueDepth: cap(e.queueCh),
		})
	}
	pinned := make([]string, 0, len(m.pinned))
	for id := range m.pinned {
		pinned = append(pinned, id)
	}
	p := m.policy
	out := types.StatusResponse{
		Policy: types.PolicyStatus{
			JustInTimeLoading:    p.JustInTimeLoading,
			AutoUnloadJIT:        p.AutoUnloadJIT,
			IdleTTLSeconds:       int64(p.IdleTTL / time.Second),
			OnlyKeepLastJITModel: p.OnlyKeepLastJITModel,
		},
		Descriptors:    len(m.descs),
		LoadsTotal:     m.loadsTotal,
		EvictionsTotal: m.evictionsTotal,
		UptimeSeconds:  int64(time.Since(m.startTime) / time.Second),
		ServerTimeUnix: time.Now().Unix(),
	}
	m.mu.Unlock()

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].ModelID < loaded[j].ModelID })
	sort.Strings(pinned)
	out.Loaded = loaded
	out.Pinned = pinned

	m.loopMu.Lock()
	out.LoopbackRunning = m.loopback.Running()
	m.loopMu.Unlock()
	return out
}

// Loaded reports whether a client for id is resident.
func (m *Manager) Loaded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok
}

// Pinned reports whether id is pinned.
func (m *Manager) Pinned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinned[id]
}
