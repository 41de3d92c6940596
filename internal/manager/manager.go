package manager

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"relayd/pkg/types"
)

// Manager is the loaded-client pool. It owns at most one live client per
// model id and decides when clients are built and released.
type Manager struct {
	mu      sync.Mutex
	descs   map[string]types.Descriptor
	order   []string
	descGen uint64
	entries map[string]*entry
	pinned  map[string]bool
	// Callers currently inside the construction path.
	pending int
	policy  Policy

	// Detached entries still finishing a generation.
	draining int

	maxQueueDepth int
	maxWait       time.Duration
	unloadTimeout time.Duration
	loadTimeout   time.Duration

	llama     LlamaConfig
	factory   ClientFactory
	loopback  Loopback
	loopMu    sync.Mutex
	sf        singleflight.Group
	publisher EventPublisher
	log       zerolog.Logger
	now       func() time.Time

	// Projector the running loopback was started with; guarded by loopMu.
	loopProjector string

	loadsTotal     uint64
	evictionsTotal uint64
	startTime      time.Time
}

// New builds a pool over descs with the given policy and default tunables.
func New(descs []types.Descriptor, policy Policy) *Manager {
	// Delegate to NewWithConfig to centralize defaults and option parsing
	return NewWithConfig(ManagerConfig{
		Descriptors: descs,
		Policy:      policy,
	})
}

// SetPublisher installs an EventPublisher for lifecycle events.
func (m *Manager) SetPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	m.publisher = p
}

func (m *Manager) publish(e Event) {
	m.mu.Lock()
	p := m.publisher
	m.mu.Unlock()
	p.Publish(e)
}

// Ready reports whether the pool can serve: at least one descriptor is known.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.descs) > 0
}

// Descriptors returns the current descriptor set ordered by id.
func (m *Manager) Descriptors() []types.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Descriptor, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.descs[id])
	}
	return out
}

// Resolve finds a descriptor by exact id, then identifier, then display
// name, then any of those case-insensitively.
func (m *Manager) Resolve(name string) (types.Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(name)
}

func (m *Manager) resolveLocked(name string) (types.Descriptor, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Descriptor{}, false
	}
	if d, ok := m.descs[name]; ok {
		return d, true
	}
	for _, id := range m.order {
		if d := m.descs[id]; d.Identifier == name {
			return d, true
		}
	}
	for _, id := range m.order {
		if d := m.descs[id]; d.DisplayName == name {
			return d, true
		}
	}
	for _, id := range m.order {
		d := m.descs[id]
		if strings.EqualFold(d.ID, name) || strings.EqualFold(d.Identifier, name) || strings.EqualFold(d.DisplayName, name) {
			return d, true
		}
	}
	return types.Descriptor{}, false
}

func (m *Manager) setDescriptorsLocked(descs []types.Descriptor) map[string]types.Descriptor {
	next := make(map[string]types.Descriptor, len(descs))
	for _, d := range descs {
		if d.ID == "" || d.Kind == nil {
			continue
		}
		next[d.ID] = d
	}
	order := make([]string, 0, len(next))
	for id := range next {
		order = append(order, id)
	}
	sort.Strings(order)
	m.descs = next
	m.order = order
	m.descGen++
	return next
}

// Close unloads every client and stops the loopback server.
func (m *Manager) Close() {
	m.mu.Lock()
	var victims []*entry
	for id := range m.entries {
		victims = append(victims, m.detachLocked(id))
	}
	m.mu.Unlock()
	for _, e := range victims {
		m.finishEvict(e, ReasonShutdown)
	}
	m.stopLoopbackIfIdle()
}
