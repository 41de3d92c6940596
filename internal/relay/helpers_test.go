package relay

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relayd/internal/manager"
	"relayd/internal/remote"
	"relayd/pkg/types"
)

// scriptedClient replays chunks and records what it was asked.
type scriptedClient struct {
	chunks []string
	hang   bool

	mu        sync.Mutex
	lastInput manager.Input
	textCalls int
	cancels   int
	cancelCh  chan struct{}
}

func newScripted(chunks ...string) *scriptedClient {
	return &scriptedClient{chunks: chunks, cancelCh: make(chan struct{})}
}

func (c *scriptedClient) Text(ctx context.Context, in manager.Input) (string, error) {
	c.mu.Lock()
	c.textCalls++
	c.lastInput = in
	c.mu.Unlock()
	return strings.Join(c.chunks, ""), nil
}

func (c *scriptedClient) TextStream(ctx context.Context, in manager.Input, onChunk func(string) error) error {
	c.mu.Lock()
	c.lastInput = in
	c.mu.Unlock()
	for _, s := range c.chunks {
		if err := onChunk(s); err != nil {
			return err
		}
	}
	if c.hang {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.cancelCh:
			return context.Canceled
		}
	}
	return nil
}

func (c *scriptedClient) CancelActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
}

func (c *scriptedClient) Unload() error { return nil }

func (c *scriptedClient) UnloadAndWait(ctx context.Context) error { return nil }

type noLoopback struct{}

func (noLoopback) Start(context.Context, manager.LoadParams) error { return nil }

func (noLoopback) Stop() error { return nil }

func (noLoopback) Running() bool { return false }

// fakeRemote answers remote chats from a canned reply.
type fakeRemote struct {
	reply remote.Reply
	err   error

	mu      sync.Mutex
	backend types.Backend
	model   string
	msgs    []types.Message
}

func (f *fakeRemote) Chat(ctx context.Context, b types.Backend, model string, msgs []types.Message, p types.GenerationParams) (remote.Reply, error) {
	f.mu.Lock()
	f.backend, f.model, f.msgs = b, model, msgs
	f.mu.Unlock()
	return f.reply, f.err
}

func localDesc(id string) types.Descriptor {
	return types.Descriptor{
		ID:         id,
		Identifier: id,
		Kind:       types.LocalKind{ModelRef: "/m/" + id + ".gguf", Format: types.FormatGGUF},
	}
}

type fixture struct {
	engine *Engine
	pool   *manager.Manager
	client *scriptedClient
	remote *fakeRemote
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, client *scriptedClient, descs ...types.Descriptor) *fixture {
	t.Helper()
	if len(descs) == 0 {
		descs = []types.Descriptor{localDesc("local")}
	}
	pool := manager.NewWithConfig(manager.ManagerConfig{
		Descriptors: descs,
		Policy:      manager.Policy{JustInTimeLoading: true, AutoUnloadJIT: true, IdleTTL: time.Minute},
		Factory: manager.ClientFactoryFunc(func(context.Context, types.Descriptor, manager.LoadParams) (manager.Client, error) {
			return client, nil
		}),
		Loopback: noLoopback{},
	})
	t.Cleanup(pool.Close)
	logs := &bytes.Buffer{}
	logger := zerolog.New(logs)
	fr := &fakeRemote{}
	e := New(Config{
		Pool:   pool,
		Remote: fr,
		Backends: map[string]types.Backend{
			"box": {ID: "box", DisplayName: "Box", Dialect: types.DialectOllama, ChatURL: "http://box/api/chat"},
		},
		Logger: &logger,
	})
	return &fixture{engine: e, pool: pool, client: client, remote: fr, logs: logs}
}

func (f *fixture) auditLines() []string {
	var out []string
	for _, l := range strings.Split(strings.TrimSpace(f.logs.String()), "\n") {
		if strings.Contains(l, `"event":"relay_call"`) {
			out = append(out, l)
		}
	}
	return out
}

func userMsg(s string) []types.Message {
	return []types.Message{{Role: types.RoleUser, Content: s}}
}

// heldClient emits its first chunk, then waits for release, CancelActive
// or the caller's context before emitting the rest.
type heldClient struct {
	chunks  []string
	started chan struct{}
	release chan struct{}

	mu        sync.Mutex
	cancelled chan struct{}
	cancels   int
	unloads   int
}

func newHeldClient(chunks ...string) *heldClient {
	return &heldClient{
		chunks:    chunks,
		started:   make(chan struct{}),
		release:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (c *heldClient) Text(ctx context.Context, in manager.Input) (string, error) {
	var b strings.Builder
	err := c.TextStream(ctx, in, func(s string) error {
		b.WriteString(s)
		return nil
	})
	return b.String(), err
}

func (c *heldClient) TextStream(ctx context.Context, in manager.Input, onChunk func(string) error) error {
	for i, s := range c.chunks {
		if err := onChunk(s); err != nil {
			return err
		}
		if i == 0 {
			close(c.started)
			select {
			case <-c.release:
			case <-c.cancelled:
				return context.Canceled
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (c *heldClient) CancelActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancels == 0 {
		close(c.cancelled)
	}
	c.cancels++
}

func (c *heldClient) Unload() error { return nil }

func (c *heldClient) UnloadAndWait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unloads++
	return nil
}

func (c *heldClient) counts() (cancels, unloads int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels, c.unloads
}

// newPoolEngine serves each descriptor id with its own client.
func newPoolEngine(t *testing.T, policy manager.Policy, clients map[string]manager.Client, descs ...types.Descriptor) (*Engine, *manager.Manager) {
	t.Helper()
	pool := manager.NewWithConfig(manager.ManagerConfig{
		Descriptors: descs,
		Policy:      policy,
		Factory: manager.ClientFactoryFunc(func(_ context.Context, d types.Descriptor, _ manager.LoadParams) (manager.Client, error) {
			return clients[d.ID], nil
		}),
		Loopback: noLoopback{},
	})
	t.Cleanup(pool.Close)
	return New(Config{Pool: pool}), pool
}
