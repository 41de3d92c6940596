package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"

	"relayd/internal/presence"
	"relayd/internal/relay"
	"relayd/pkg/types"
)

// mockService answers generation calls with scripted deltas and a result.
type mockService struct {
	mu sync.Mutex

	descs  []types.Descriptor
	status types.StatusResponse
	ready  bool

	deltas   []string
	result   relay.Result
	respID   string
	err      error
	errAfter bool // emit deltas before failing
	block    bool // wait for ctx and report cancellation

	lastChat       relay.ChatRequest
	lastCompletion relay.CompletionRequest
	lastResponse   relay.ResponseRequest
	lastEmbed      relay.EmbedRequest
	vectors        [][]float32

	loadErr  error
	loaded   []string
	unloaded []string

	catalog []byte
	upserts []types.CatalogEntry
	clients []presence.Metadata
}

func (m *mockService) run(ctx context.Context, onDelta func(string) error) (relay.Result, error) {
	if m.block {
		<-ctx.Done()
		return relay.Result{FinishReason: types.FinishCancelled}, nil
	}
	if m.err != nil && !m.errAfter {
		return relay.Result{}, m.err
	}
	if onDelta != nil {
		for _, d := range m.deltas {
			if err := onDelta(d); err != nil {
				return relay.Result{}, err
			}
		}
	}
	if m.err != nil {
		return relay.Result{}, m.err
	}
	return m.result, nil
}

func (m *mockService) PerformChat(ctx context.Context, req relay.ChatRequest) (relay.Result, error) {
	m.mu.Lock()
	m.lastChat = req
	m.mu.Unlock()
	return m.run(ctx, nil)
}

func (m *mockService) StreamChat(ctx context.Context, req relay.ChatRequest, onDelta func(string) error) (relay.Result, error) {
	m.mu.Lock()
	m.lastChat = req
	m.mu.Unlock()
	return m.run(ctx, onDelta)
}

func (m *mockService) PerformCompletion(ctx context.Context, req relay.CompletionRequest) (relay.Result, error) {
	m.mu.Lock()
	m.lastCompletion = req
	m.mu.Unlock()
	return m.run(ctx, nil)
}

func (m *mockService) StreamCompletion(ctx context.Context, req relay.CompletionRequest, onDelta func(string) error) (relay.Result, error) {
	m.mu.Lock()
	m.lastCompletion = req
	m.mu.Unlock()
	return m.run(ctx, onDelta)
}

func (m *mockService) PerformResponse(ctx context.Context, req relay.ResponseRequest) (relay.ResponseResult, error) {
	m.mu.Lock()
	m.lastResponse = req
	m.mu.Unlock()
	res, err := m.run(ctx, nil)
	return relay.ResponseResult{ID: m.respID, Result: res}, err
}

func (m *mockService) Embed(ctx context.Context, req relay.EmbedRequest) (relay.EmbedResult, error) {
	m.mu.Lock()
	m.lastEmbed = req
	m.mu.Unlock()
	if m.err != nil {
		return relay.EmbedResult{}, m.err
	}
	return relay.EmbedResult{ModelID: req.Model, Vectors: m.vectors, Usage: m.result.Usage}, nil
}

func (m *mockService) Models() []types.Descriptor {
	return append([]types.Descriptor(nil), m.descs...)
}

func (m *mockService) Resolve(name string) (types.Descriptor, bool) {
	for _, d := range m.descs {
		if d.ID == name || d.DisplayName == name {
			return d, true
		}
	}
	return types.Descriptor{}, false
}

func (m *mockService) LoadModel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = append(m.loaded, id)
	return nil
}

func (m *mockService) UnloadModel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unloaded = append(m.unloaded, id)
	return nil
}

func (m *mockService) Ready() bool { return m.ready }

func (m *mockService) Status() types.StatusResponse { return m.status }

func (m *mockService) CatalogJSON() ([]byte, error) { return m.catalog, nil }

func (m *mockService) UpsertCatalogEntry(e types.CatalogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, e)
}

func (m *mockService) RecordClient(md presence.Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = append(m.clients, md)
}

func (m *mockService) ConnectedClients() []types.ConnectedClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ConnectedClient
	for _, md := range m.clients {
		out = append(out, types.ConnectedClient{Transport: md.Transport, Identifier: md.Identifier, Name: md.Name, Model: md.Model})
	}
	return out
}

func (m *mockService) recorded() []presence.Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]presence.Metadata(nil), m.clients...)
}

func localModel(id string) types.Descriptor {
	return types.Descriptor{ID: id, Kind: types.LocalKind{ModelRef: "/m/" + id, Format: types.FormatGGUF}}
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}
