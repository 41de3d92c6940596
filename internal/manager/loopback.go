package manager

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Loopback is the auxiliary server that handles multimodal input for
// vision models.
type Loopback interface {
	Start(ctx context.Context, lp LoadParams) error
	Stop() error
	Running() bool
}

// ensureLoopback starts the loopback server for lp if it is not running.
// A running server started for a different projector is restarted.
func (m *Manager) ensureLoopback(ctx context.Context, lp LoadParams) error {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.loopback.Running() {
		if lp.ProjectorPath == "" || lp.ProjectorPath == m.loopProjector {
			return nil
		}
		m.log.Info().Str("from", m.loopProjector).Str("to", lp.ProjectorPath).Msg("restarting loopback for new projector")
		if err := m.loopback.Stop(); err != nil {
			m.log.Warn().Err(err).Msg("loopback stop failed")
		}
		loopbackGauge.Set(0)
		m.loopProjector = ""
	}
	if err := m.loopback.Start(ctx, lp); err != nil {
		m.log.Error().Err(err).Str("model", lp.ModelPath).Msg("loopback start failed")
		return err
	}
	m.loopProjector = lp.ProjectorPath
	loopbackGauge.Set(1)
	m.log.Info().Str("model", lp.ModelPath).Str("mmproj", lp.ProjectorPath).Msg("loopback started")
	m.publish(Event{Name: EventLoopbackStart, ModelID: lp.ModelPath})
	return nil
}

// stopLoopbackIfIdle stops the loopback server once nothing is loaded,
// loading or draining.
func (m *Manager) stopLoopbackIfIdle() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	m.mu.Lock()
	idle := len(m.entries) == 0 && m.pending == 0 && m.draining == 0
	m.mu.Unlock()
	if !idle || !m.loopback.Running() {
		return
	}
	if err := m.loopback.Stop(); err != nil {
		m.log.Warn().Err(err).Msg("loopback stop failed")
	}
	m.loopProjector = ""
	loopbackGauge.Set(0)
	m.log.Info().Msg("loopback stopped")
	m.publish(Event{Name: EventLoopbackStop})
}

// llamaLoopback runs llama-server with --mmproj next to the primary client.
type llamaLoopback struct {
	cfg LlamaConfig
	log zerolog.Logger

	mu   sync.Mutex
	proc *llamaProcess
}

func newLlamaLoopback(cfg LlamaConfig, log zerolog.Logger) *llamaLoopback {
	return &llamaLoopback{cfg: cfg, log: log.With().Str("role", "loopback").Logger()}
}

func (l *llamaLoopback) Start(ctx context.Context, lp LoadParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proc != nil {
		if l.proc.Alive() {
			return nil
		}
		_ = l.proc.Stop()
		l.proc = nil
	}
	bin := l.cfg.Bin
	if bin == "" {
		bin = discoverLlamaBin()
	}
	if bin == "" {
		return ErrDependencyUnavailable("llama-server not found for multimodal loopback")
	}
	p, err := startLlamaProcess(ctx, bin, l.cfg, lp, l.log)
	if err != nil {
		return err
	}
	l.proc = p
	return nil
}

func (l *llamaLoopback) Stop() error {
	l.mu.Lock()
	p := l.proc
	l.proc = nil
	l.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Stop()
}

func (l *llamaLoopback) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.proc != nil && l.proc.Alive()
}
