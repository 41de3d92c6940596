package relay

import (
	"context"

	"relayd/internal/catalog"
	"relayd/internal/manager"
	"relayd/internal/presence"
	"relayd/pkg/types"
)

// Models returns every servable descriptor ordered by id.
func (e *Engine) Models() []types.Descriptor { return e.pool.Descriptors() }

// Backend returns the backend a remote descriptor points at.
func (e *Engine) Backend(id string) (types.Backend, bool) {
	e.bmu.RLock()
	defer e.bmu.RUnlock()
	b, ok := e.backends[id]
	return b, ok
}

// Reload swaps in a new descriptor set and backend table. Clients whose
// descriptor vanished or changed kind are unloaded by the pool; the catalog
// keeps the exposure of surviving ids.
func (e *Engine) Reload(descs []types.Descriptor, backends map[string]types.Backend) {
	if backends == nil {
		backends = map[string]types.Backend{}
	}
	e.bmu.Lock()
	e.backends = backends
	e.bmu.Unlock()
	e.pool.UpdateDescriptors(descs)
	e.catalog.SeedFromDescriptors(e.pool.Descriptors())
}

// Resolve maps a requested model name to its descriptor.
func (e *Engine) Resolve(name string) (types.Descriptor, bool) { return e.pool.Resolve(name) }

// LoadModel loads and pins a model.
func (e *Engine) LoadModel(ctx context.Context, id string) error {
	return e.pool.EnsureModelLoaded(ctx, id, manager.OriginManual)
}

// UnloadModel unpins and releases a model.
func (e *Engine) UnloadModel(id string) error { return e.pool.UnloadModel(id) }

// Ready reports whether any model is servable.
func (e *Engine) Ready() bool { return e.pool.Ready() }

// Status combines pool, session and presence state.
func (e *Engine) Status() types.StatusResponse {
	st := e.pool.Status()
	st.Sessions = e.sessions.Len()
	st.ConnectedClients = e.presence.Len()
	return st
}

// CatalogJSON renders the peer-facing catalog.
func (e *Engine) CatalogJSON() ([]byte, error) {
	descs := e.pool.Descriptors()
	byID := make(map[string]types.Descriptor, len(descs))
	for _, d := range descs {
		byID[d.ID] = d
	}
	e.bmu.RLock()
	defer e.bmu.RUnlock()
	return catalog.ExportJSON(e.catalog.Entries(), byID, e.backends)
}

// UpsertCatalogEntry records externally observed exposure or health.
func (e *Engine) UpsertCatalogEntry(entry types.CatalogEntry) { e.catalog.Upsert(entry) }

// RecordClient notes a caller.
func (e *Engine) RecordClient(md presence.Metadata) { e.presence.Record(md) }

// ConnectedClients lists callers seen recently, most recent first.
func (e *Engine) ConnectedClients() []types.ConnectedClient { return e.presence.Snapshot() }
