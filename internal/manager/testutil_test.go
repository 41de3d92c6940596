package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"relayd/pkg/types"
)

// fakeClient is an in-memory Client that replays chunks.
type fakeClient struct {
	chunks   []string
	unloaded atomic.Bool
	cancels  atomic.Int32

	// block, when set, makes TextStream wait for cancellation.
	block bool
	mu    sync.Mutex
	stop  chan struct{}
}

func newFakeClient(chunks ...string) *fakeClient {
	return &fakeClient{chunks: chunks, stop: make(chan struct{})}
}

func (c *fakeClient) Text(ctx context.Context, in Input) (string, error) {
	out := ""
	err := c.TextStream(ctx, in, func(s string) error { out += s; return nil })
	return out, err
}

func (c *fakeClient) TextStream(ctx context.Context, in Input, onChunk func(string) error) error {
	if c.unloaded.Load() {
		return errors.New("unloaded")
	}
	if c.block {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		}
	}
	for _, s := range c.chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onChunk(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *fakeClient) CancelActive() {
	c.cancels.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stop:
	default:
		if c.block {
			close(c.stop)
		}
	}
}

func (c *fakeClient) Unload() error { c.unloaded.Store(true); return nil }

func (c *fakeClient) UnloadAndWait(context.Context) error { c.unloaded.Store(true); return nil }

// fakeFactory counts constructions and hands out fakeClients.
type fakeFactory struct {
	mu      sync.Mutex
	calls   map[string]int
	clients map[string]*fakeClient
	delay   time.Duration
	err     error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{calls: map[string]int{}, clients: map[string]*fakeClient{}}
}

func (f *fakeFactory) NewClient(ctx context.Context, desc types.Descriptor, lp LoadParams) (Client, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[desc.ID]++
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeClient("a", "b")
	f.clients[desc.ID] = c
	return c, nil
}

func (f *fakeFactory) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeFactory) client(id string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[id]
}

// fakeLoopback records start/stop calls.
type fakeLoopback struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
	last    LoadParams
}

func (l *fakeLoopback) Start(_ context.Context, lp LoadParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = true
	l.starts++
	l.last = lp
	return nil
}

func (l *fakeLoopback) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	l.stops++
	return nil
}

func (l *fakeLoopback) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func localDesc(id string) types.Descriptor {
	return types.Descriptor{
		ID:         id,
		Identifier: id,
		Kind:       types.LocalKind{ModelRef: "/models/" + id + ".gguf", Format: types.FormatGGUF},
	}
}

func remoteDesc(id string) types.Descriptor {
	return types.Descriptor{
		ID:   id,
		Kind: types.RemoteKind{BackendRef: "ollama", RemoteModelRef: id},
	}
}

func jitPolicy(ttl time.Duration) Policy {
	return Policy{JustInTimeLoading: true, AutoUnloadJIT: true, IdleTTL: ttl}
}

// newTestManager builds a pool with fakes wired in.
func newTestManager(t *testing.T, policy Policy, descs ...types.Descriptor) (*Manager, *fakeFactory, *fakeLoopback) {
	t.Helper()
	f := newFakeFactory()
	lb := &fakeLoopback{}
	m := NewWithConfig(ManagerConfig{
		Descriptors: descs,
		Policy:      policy,
		Factory:     f,
		Loopback:    lb,
		MaxWait:     200 * time.Millisecond,
	})
	t.Cleanup(m.Close)
	return m, f, lb
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}
