package manager

import (
	"sync"
	"time"

	"relayd/pkg/types"
)

// Origin says who asked for a model to be loaded.
type Origin string

const (
	// OriginManual loads pin the model until it is explicitly unloaded.
	OriginManual Origin = "manual"
	// OriginJIT loads happen on demand and may be evicted when idle.
	OriginJIT Origin = "jit"
)

// Eviction reasons.
const (
	ReasonIdleTTL  = "idle_ttl"
	ReasonUnload   = "unload"
	ReasonKeepLast = "keep_last_jit"
	ReasonRemoved  = "descriptor_removed"
	ReasonShutdown = "shutdown"
)

// entry is one live client in the pool.
type entry struct {
	id       string
	desc     types.Descriptor
	client   Client
	lastUsed time.Time
	// Leases handed out and not yet released, including queued ones.
	inflight int
	// Set on a detached entry whose unload waits for its last lease.
	draining string
	timer    *time.Timer
	// Bumped on every cancel/re-arm; a firing timer with an older value is stale.
	timerGen uint64
	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots
}

// Lease is exclusive use of a pooled client for one generation.
type Lease struct {
	Client     Client
	Descriptor types.Descriptor

	once    sync.Once
	release func()
	current func() bool
}

// Evicted reports whether the leased model has left the pool since the
// lease was granted.
func (l *Lease) Evicted() bool {
	if l == nil || l.current == nil {
		return false
	}
	return !l.current()
}

// Release returns the admission slot and refreshes the model's idle timer.
// It is safe to call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}
