package manager

import (
	"time"

	"github.com/rs/zerolog"

	"relayd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultUnloadTimeout = 10 * time.Second
	defaultLoadTimeout   = 2 * time.Minute
)

// Policy controls when JIT-loaded clients are released.
type Policy struct {
	JustInTimeLoading    bool
	AutoUnloadJIT        bool
	IdleTTL              time.Duration
	OnlyKeepLastJITModel bool
}

// timersEnabled reports whether idle eviction timers are armed at all.
func (p Policy) timersEnabled() bool {
	return p.JustInTimeLoading && p.AutoUnloadJIT && p.IdleTTL > 0
}

// LlamaConfig carries llama.cpp settings that apply to every local model
// unless the descriptor overrides them.
type LlamaConfig struct {
	Bin           string
	Host          string
	Threads       int
	ContextLength int
	GPULayers     int
	ExtraArgs     []string
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Descriptors   []types.Descriptor
	Policy        Policy
	MaxQueueDepth int
	MaxWait       time.Duration
	UnloadTimeout time.Duration
	// LoadTimeout bounds one client construction, which outlives the
	// caller that started it.
	LoadTimeout time.Duration
	Llama       LlamaConfig
	// Factory builds local clients. Nil selects the llama.cpp factory.
	Factory ClientFactory
	// Loopback runs the auxiliary multimodal server. Nil selects a
	// llama-server process.
	Loopback  Loopback
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		entries:   make(map[string]*entry),
		pinned:    make(map[string]bool),
		policy:    cfg.Policy,
		llama:     cfg.Llama,
		factory:   cfg.Factory,
		loopback:  cfg.Loopback,
		publisher: cfg.Publisher,
		now:       time.Now,
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.UnloadTimeout <= 0 {
		m.unloadTimeout = defaultUnloadTimeout
	} else {
		m.unloadTimeout = cfg.UnloadTimeout
	}
	if cfg.LoadTimeout <= 0 {
		m.loadTimeout = defaultLoadTimeout
	} else {
		m.loadTimeout = cfg.LoadTimeout
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "pool").Logger()
	} else {
		m.log = zerolog.Nop()
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if m.factory == nil {
		m.factory = NewLlamaFactory(cfg.Llama, m.log)
	}
	if m.loopback == nil {
		m.loopback = newLlamaLoopback(cfg.Llama, m.log)
	}
	m.setDescriptorsLocked(cfg.Descriptors)
	m.startTime = time.Now()
	return m
}
