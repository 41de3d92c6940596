package manager

import "relayd/pkg/types"

// UpdateConfiguration swaps the loading policy. Timers of unpinned entries
// restart with the new TTL, or are cancelled when auto-unload is off.
func (m *Manager) UpdateConfiguration(p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
	for id, e := range m.entries {
		if m.pinned[id] {
			continue
		}
		if p.timersEnabled() {
			m.armTimerLocked(e)
		} else {
			m.cancelTimerLocked(e)
		}
	}
	m.log.Info().
		Bool("jit", p.JustInTimeLoading).
		Bool("auto_unload", p.AutoUnloadJIT).
		Dur("idle_ttl", p.IdleTTL).
		Bool("only_keep_last", p.OnlyKeepLastJITModel).
		Msg("policy updated")
}

// Policy returns the active loading policy.
func (m *Manager) Policy() Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// UpdateDescriptors replaces the descriptor set. Loaded or pinned ids that
// disappeared are unloaded and unpinned; loaded ids whose kind changed are
// unloaded so the next use rebuilds them.
func (m *Manager) UpdateDescriptors(descs []types.Descriptor) {
	m.mu.Lock()
	next := m.setDescriptorsLocked(descs)
	var stale []*entry
	retired := 0
	for id, e := range m.entries {
		cur, ok := next[id]
		if !ok || cur.Kind != e.desc.Kind {
			retired++
			if v := m.retireLocked(id, ReasonRemoved); v != nil {
				stale = append(stale, v)
			}
		}
	}
	for id := range m.pinned {
		if _, ok := next[id]; !ok {
			delete(m.pinned, id)
		}
	}
	m.mu.Unlock()
	m.log.Info().Int("descriptors", len(next)).Int("unloaded", retired).Msg("descriptors updated")
	for _, e := range stale {
		m.finishEvict(e, ReasonRemoved)
	}
}
