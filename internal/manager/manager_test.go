package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"relayd/pkg/types"
)

func TestEnsureModelLoadedConstructsOnce(t *testing.T) {
	m, f, _ := newTestManager(t, jitPolicy(time.Minute), localDesc("a"))
	f.delay = 20 * time.Millisecond
	ctx := testCtx(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.EnsureModelLoaded(ctx, "a", OriginJIT)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("EnsureModelLoaded: %v", err)
		}
	}
	if err := m.EnsureModelLoaded(ctx, "a", OriginJIT); err != nil {
		t.Fatalf("EnsureModelLoaded again: %v", err)
	}
	if got := f.count("a"); got != 1 {
		t.Fatalf("expected one construction, got %d", got)
	}
	if !m.Loaded("a") {
		t.Fatalf("expected a loaded")
	}
}

func TestEnsureModelLoadedUnknown(t *testing.T) {
	m, _, _ := newTestManager(t, jitPolicy(time.Minute), localDesc("a"))
	err := m.EnsureModelLoaded(testCtx(t), "nope", OriginJIT)
	if !IsNotConfigured(err) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestEnsureModelLoadedRemoteIsNoop(t *testing.T) {
	m, f, _ := newTestManager(t, jitPolicy(time.Minute), remoteDesc("r"))
	if err := m.EnsureModelLoaded(testCtx(t), "r", OriginManual); err != nil {
		t.Fatalf("remote ensure: %v", err)
	}
	if f.count("r") != 0 || m.Loaded("r") || m.Pinned("r") {
		t.Fatalf("remote model should not touch the pool")
	}
}

func TestAcquireRemoteIsNotConfigured(t *testing.T) {
	m, _, _ := newTestManager(t, jitPolicy(time.Minute), remoteDesc("r"))
	_, err := m.Acquire(testCtx(t), "r", OriginJIT)
	if !IsNotConfigured(err) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestUnsupportedFormatFailsBeforeFactory(t *testing.T) {
	d := localDesc("mlx")
	d.Kind = types.LocalKind{ModelRef: "/models/mlx", Format: types.FormatMLX}
	m, f, _ := newTestManager(t, jitPolicy(time.Minute), d)
	err := m.EnsureModelLoaded(testCtx(t), "mlx", OriginJIT)
	if !IsUnsupportedFormat(err) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if f.count("mlx") != 0 {
		t.Fatalf("factory should not be called")
	}
}

func TestLoadErrorPublishesAndLeavesPoolEmpty(t *testing.T) {
	m, f, _ := newTestManager(t, jitPolicy(time.Minute), localDesc("a"))
	f.err = ErrDependencyUnavailable("no runtime")
	pub := NewMemoryPublisher()
	m.SetPublisher(pub)
	err := m.EnsureModelLoaded(testCtx(t), "a", OriginJIT)
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable through wrapping, got %v", err)
	}
	if m.Loaded("a") {
		t.Fatalf("failed load must not be pooled")
	}
	if pub.Count(EventLoadError, "a") != 1 {
		t.Fatalf("expected one load_error event, got %+v", pub.Events())
	}
}

func TestResolveOrder(t *testing.T) {
	a := localDesc("dir/Qwen-7B.gguf")
	a.Identifier = "qwen-7b"
	a.DisplayName = "Qwen 7B"
	b := remoteDesc("llama3")
	b.DisplayName = "qwen-7b"
	m, _, _ := newTestManager(t, jitPolicy(time.Minute), a, b)

	cases := map[string]string{
		"dir/Qwen-7B.gguf": a.ID,
		"qwen-7b":          a.ID, // identifier beats display name
		"Qwen 7B":          a.ID,
		"QWEN 7b":          a.ID,
		"llama3":           b.ID,
	}
	for in, want := range cases {
		d, ok := m.Resolve(in)
		if !ok || d.ID != want {
			t.Fatalf("Resolve(%q) = %q,%v want %q", in, d.ID, ok, want)
		}
	}
	if _, ok := m.Resolve("  "); ok {
		t.Fatalf("blank name should not resolve")
	}
}

func TestAcquireLeaseReleaseIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, jitPolicy(time.Minute), localDesc("a"))
	lease, err := m.Acquire(testCtx(t), "a", OriginJIT)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease.Descriptor.ID != "a" || lease.Client == nil {
		t.Fatalf("bad lease: %+v", lease)
	}
	lease.Release()
	lease.Release()
	st := m.Status()
	if len(st.Loaded) != 1 || st.Loaded[0].Inflight != 0 || !st.Loaded[0].TimerArmed {
		t.Fatalf("unexpected status after release: %+v", st.Loaded)
	}
}

func TestPreloadPinsModels(t *testing.T) {
	m, _, _ := newTestManager(t, jitPolicy(10*time.Millisecond), localDesc("a"), localDesc("b"))
	select {
	case <-m.Preload(context.Background(), []string{"a", "missing"}):
	case <-time.After(2 * time.Second):
		t.Fatalf("preload did not finish")
	}
	if !m.Loaded("a") || !m.Pinned("a") {
		t.Fatalf("expected a loaded and pinned")
	}
	time.Sleep(40 * time.Millisecond)
	if !m.Loaded("a") {
		t.Fatalf("pinned model must survive the ttl")
	}
}

func TestReadyAndDescriptors(t *testing.T) {
	m, _, _ := newTestManager(t, jitPolicy(time.Minute))
	if m.Ready() {
		t.Fatalf("empty pool should not be ready")
	}
	m.UpdateDescriptors([]types.Descriptor{localDesc("b"), localDesc("a")})
	if !m.Ready() {
		t.Fatalf("expected ready")
	}
	ds := m.Descriptors()
	if len(ds) != 2 || ds[0].ID != "a" || ds[1].ID != "b" {
		t.Fatalf("descriptors not sorted: %+v", ds)
	}
}

func TestLoadSurvivesFirstCallerLeaving(t *testing.T) {
	m, f, _ := newTestManager(t, jitPolicy(time.Minute), localDesc("a"))
	f.delay = 80 * time.Millisecond

	short, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- m.EnsureModelLoaded(short, "a", OriginJIT) }()
	time.Sleep(10 * time.Millisecond)

	secondErr := make(chan error, 1)
	go func() { secondErr <- m.EnsureModelLoaded(testCtx(t), "a", OriginJIT) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-firstErr; err != context.Canceled {
		t.Fatalf("first caller: expected context.Canceled, got %v", err)
	}
	if err := <-secondErr; err != nil {
		t.Fatalf("second caller failed with the first one's cancellation: %v", err)
	}
	if got := f.count("a"); got != 1 {
		t.Fatalf("expected one construction, got %d", got)
	}
}

func TestAbandonedLoadStillGetsIdleTimer(t *testing.T) {
	m, f, _ := newTestManager(t, jitPolicy(40*time.Millisecond), localDesc("a"))
	f.delay = 30 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := m.EnsureModelLoaded(ctx, "a", OriginJIT); err == nil {
		t.Fatalf("expected the caller's deadline to end its wait")
	}
	if !waitFor(t, time.Second, func() bool { return m.Loaded("a") }) {
		t.Fatalf("construction did not finish after its caller left")
	}
	if !waitFor(t, time.Second, func() bool { return !m.Loaded("a") }) {
		t.Fatalf("abandoned load never idle-evicted")
	}
	if !f.client("a").unloaded.Load() {
		t.Fatalf("evicted client was not unloaded")
	}
}
