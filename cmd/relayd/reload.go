package main

import (
	"relayd/internal/manager"
	"relayd/internal/relay"
)

// reload re-reads the config file and environment, applies the serving
// policy to the pool and rediscovers models. Listener, queue and llama
// settings, and the models dir and manifest, keep their startup values.
func (a *app) reload(lookup func(string) (string, bool), pool *manager.Manager, engine *relay.Engine) error {
	cfg, err := loadConfig(a.configPath, lookup)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg.Serving = cfg.Serving
	pool.UpdateConfiguration(policyFrom(a.cfg.Serving))

	descs, backends, err := discover(a.cfg, a.log)
	if err != nil {
		return err
	}
	engine.Reload(descs, backends)
	a.log.Info().Int("models", len(descs)).Int("backends", len(backends)).Msg("reloaded")
	return nil
}
