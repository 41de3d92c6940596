package manager

import (
	"context"
	"sync"
)

// Preload loads ids in the background with manual origin, so they stay
// pinned. The returned channel closes once every load has finished; errors
// are logged.
func (m *Manager) Preload(ctx context.Context, ids []string) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.EnsureModelLoaded(ctx, id, OriginManual); err != nil {
				m.log.Warn().Err(err).Str("model", id).Msg("preload failed")
				return
			}
			m.log.Info().Str("model", id).Msg("preloaded")
		}(id)
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
