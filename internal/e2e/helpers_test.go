package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"relayd/internal/httpapi"
	"relayd/internal/manager"
	"relayd/internal/registry"
	"relayd/internal/relay"
	"relayd/pkg/types"
)

// createTempModelsDir creates a temporary directory populated with empty .gguf files
// and returns the directory path and the list of model IDs (filenames).
func createTempModelsDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir, names
}

// echoClient streams a fixed reply word by word. When gate is non-nil every
// generation blocks on it after the first chunk.
type echoClient struct {
	reply string
	gate  chan struct{}

	mu       sync.Mutex
	lastMsgs []types.Message
}

func (c *echoClient) Text(ctx context.Context, in manager.Input) (string, error) {
	var b strings.Builder
	err := c.TextStream(ctx, in, func(s string) error {
		b.WriteString(s)
		return nil
	})
	return b.String(), err
}

func (c *echoClient) TextStream(ctx context.Context, in manager.Input, onChunk func(string) error) error {
	c.mu.Lock()
	c.lastMsgs = append([]types.Message(nil), in.Messages...)
	c.mu.Unlock()
	for i, w := range strings.SplitAfter(c.reply, " ") {
		if err := onChunk(w); err != nil {
			return err
		}
		if i == 0 && c.gate != nil {
			select {
			case <-c.gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (c *echoClient) messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMsgs
}

// Embed maps each text to {len(text)}.
func (c *echoClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s))}
	}
	return out, nil
}

func (c *echoClient) CancelActive() {}

func (c *echoClient) Unload() error { return nil }

func (c *echoClient) UnloadAndWait(ctx context.Context) error { return nil }

type noopLoopback struct{ running bool }

func (l *noopLoopback) Start(ctx context.Context, lp manager.LoadParams) error {
	l.running = true
	return nil
}

func (l *noopLoopback) Stop() error {
	l.running = false
	return nil
}

func (l *noopLoopback) Running() bool { return l.running }

// newServerForDirWithConfig scans modelsDir and serves the full relay stack
// over a test server. A nil cfg.Factory selects the llama.cpp factory.
func newServerForDirWithConfig(t *testing.T, modelsDir string, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	descs, err := registry.NewGGUFScanner().Scan(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	cfg.Descriptors = descs
	if cfg.Loopback == nil {
		cfg.Loopback = &noopLoopback{}
	}
	mgr := manager.NewWithConfig(cfg)
	t.Cleanup(mgr.Close)
	engine := relay.New(relay.Config{Pool: mgr})
	srv := httptest.NewServer(httpapi.NewMux(engine))
	t.Cleanup(srv.Close)
	return srv, mgr
}

// newServerForDir serves modelsDir with every model backed by client.
func newServerForDir(t *testing.T, modelsDir string, client *echoClient) (*httptest.Server, *manager.Manager) {
	t.Helper()
	return newServerForDirWithConfig(t, modelsDir, manager.ManagerConfig{Factory: factoryFor(client)})
}

func factoryFor(c *echoClient) manager.ClientFactory {
	return manager.ClientFactoryFunc(func(ctx context.Context, desc types.Descriptor, lp manager.LoadParams) (manager.Client, error) {
		return c, nil
	})
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
