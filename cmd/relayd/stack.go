package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"relayd/internal/config"
	"relayd/internal/httpapi"
	"relayd/internal/manager"
	"relayd/internal/presence"
	"relayd/internal/registry"
	"relayd/internal/relay"
	"relayd/internal/remote"
	"relayd/internal/sessions"
	"relayd/pkg/types"
)

// discover scans the models directory and merges the manifest on top. A
// missing models directory is only an error when there is no manifest.
func discover(cfg config.Config, log zerolog.Logger) ([]types.Descriptor, map[string]types.Backend, error) {
	var scanned []types.Descriptor
	if cfg.ModelsDir != "" {
		descs, err := registry.LoadDir(cfg.ModelsDir)
		switch {
		case err != nil && cfg.Manifest == "":
			return nil, nil, fmt.Errorf("scan %s: %w", cfg.ModelsDir, err)
		case err != nil:
			log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("models dir not scanned")
		default:
			scanned = descs
		}
	}
	if cfg.Manifest == "" {
		return registry.Merge(scanned, nil), map[string]types.Backend{}, nil
	}
	m, err := registry.LoadManifest(cfg.Manifest)
	if err != nil {
		return nil, nil, err
	}
	declared, err := m.Descriptors()
	if err != nil {
		return nil, nil, err
	}
	return registry.Merge(scanned, declared), m.BackendMap(), nil
}

func policyFrom(s config.Serving) manager.Policy {
	return manager.Policy{
		JustInTimeLoading:    s.JustInTimeLoading,
		AutoUnloadJIT:        s.AutoUnloadJIT,
		IdleTTL:              s.IdleTTL(),
		OnlyKeepLastJITModel: s.OnlyKeepLastJITModel,
	}
}

func newManager(cfg config.Config, descs []types.Descriptor, log zerolog.Logger) *manager.Manager {
	return manager.NewWithConfig(manager.ManagerConfig{
		Descriptors:   descs,
		Policy:        policyFrom(cfg.Serving),
		MaxQueueDepth: cfg.Queue.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.Queue.MaxWaitSeconds) * time.Second,
		Llama: manager.LlamaConfig{
			Bin:           cfg.Llama.Bin,
			Host:          cfg.Llama.Host,
			Threads:       cfg.Llama.Threads,
			ContextLength: cfg.Llama.ContextLength,
			GPULayers:     cfg.Llama.GPULayers,
			ExtraArgs:     cfg.Llama.ExtraArgs,
		},
		Publisher: manager.LogPublisher{Logger: log},
		Logger:    &log,
	})
}

func newEngine(pool *manager.Manager, backends map[string]types.Backend, cfg config.Config, log zerolog.Logger) *relay.Engine {
	return relay.New(relay.Config{
		Pool:     pool,
		Remote:   remote.New(nil, log),
		Backends: backends,
		Sessions: sessions.New(cfg.Sessions.Capacity),
		Presence: presence.New(0),
		Logger:   &log,
	})
}

// configureHTTP pushes the http section into the httpapi package settings.
func configureHTTP(cfg config.Config, log zerolog.Logger) {
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetDefaultLogLevel(httpLogLevel(cfg.LogLevel))
	httpapi.SetMaxBodyBytes(cfg.HTTP.MaxBodyBytes)
	httpapi.SetRateLimitPerMinute(cfg.HTTP.RateLimitPerMinute)
	httpapi.SetCORSOptions(cfg.HTTP.CORS.Enabled, cfg.HTTP.CORS.Origins, cfg.HTTP.CORS.Methods, cfg.HTTP.CORS.Headers)
}

// httpLogLevel maps the process log level onto per-request logging.
func httpLogLevel(level string) string {
	switch level {
	case "trace", "debug":
		return "debug"
	case "warn", "error":
		return "error"
	case "off":
		return "off"
	default:
		return "info"
	}
}
