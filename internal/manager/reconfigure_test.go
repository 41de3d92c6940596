package manager

import (
	"reflect"
	"testing"
	"time"

	"relayd/pkg/types"
)

func TestUpdateDescriptorsUnloadsAndUnpinsMissing(t *testing.T) {
	m, f, _ := newTestManager(t, jitPolicy(time.Minute), localDesc("a"), localDesc("b"))
	ctx := testCtx(t)
	if err := m.EnsureModelLoaded(ctx, "a", OriginManual); err != nil {
		t.Fatalf("ensure a: %v", err)
	}
	if err := m.EnsureModelLoaded(ctx, "b", OriginJIT); err != nil {
		t.Fatalf("ensure b: %v", err)
	}
	m.UpdateDescriptors([]types.Descriptor{localDesc("b")})
	if m.Loaded("a") || m.Pinned("a") {
		t.Fatalf("a should be unloaded and unpinned")
	}
	if !f.client("a").unloaded.Load() {
		t.Fatalf("a client not unloaded")
	}
	if !m.Loaded("b") {
		t.Fatalf("b should stay loaded")
	}
	if err := m.EnsureModelLoaded(ctx, "a", OriginJIT); !IsNotConfigured(err) {
		t.Fatalf("expected a not configured, got %v", err)
	}
}

func TestUpdateDescriptorsReloadsChangedKind(t *testing.T) {
	m, f, _ := newTestManager(t, jitPolicy(time.Minute), localDesc("a"))
	ctx := testCtx(t)
	if err := m.EnsureModelLoaded(ctx, "a", OriginJIT); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	moved := localDesc("a")
	moved.Kind = types.LocalKind{ModelRef: "/elsewhere/a.gguf", Format: types.FormatGGUF}
	m.UpdateDescriptors([]types.Descriptor{moved})
	if m.Loaded("a") {
		t.Fatalf("stale client kept after path change")
	}
	if err := m.EnsureModelLoaded(ctx, "a", OriginJIT); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if f.count("a") != 2 {
		t.Fatalf("expected a rebuild, got %d constructions", f.count("a"))
	}
}

func TestDescriptorRemovedDuringLoadDiscardsClient(t *testing.T) {
	m, f, _ := newTestManager(t, jitPolicy(time.Minute), localDesc("a"))
	f.delay = 50 * time.Millisecond
	ctx := testCtx(t)
	errCh := make(chan error, 1)
	go func() { errCh <- m.EnsureModelLoaded(ctx, "a", OriginJIT) }()
	time.Sleep(10 * time.Millisecond)
	m.UpdateDescriptors(nil)
	err := <-errCh
	if !IsNotConfigured(err) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if m.Loaded("a") {
		t.Fatalf("discarded client was pooled")
	}
	if c := f.client("a"); c == nil || !c.unloaded.Load() {
		t.Fatalf("discarded client must be unloaded")
	}
}

func TestUpdateConfigurationRearmsTimers(t *testing.T) {
	p := jitPolicy(time.Minute)
	m, _, _ := newTestManager(t, p, localDesc("a"))
	if err := m.EnsureModelLoaded(testCtx(t), "a", OriginJIT); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	p.IdleTTL = 20 * time.Millisecond
	m.UpdateConfiguration(p)
	if !waitFor(t, time.Second, func() bool { return !m.Loaded("a") }) {
		t.Fatalf("new ttl not applied")
	}
}

func TestUpdateConfigurationCancelsTimers(t *testing.T) {
	m, _, _ := newTestManager(t, jitPolicy(30*time.Millisecond), localDesc("a"))
	if err := m.EnsureModelLoaded(testCtx(t), "a", OriginJIT); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.UpdateConfiguration(Policy{JustInTimeLoading: true, IdleTTL: 30 * time.Millisecond})
	time.Sleep(80 * time.Millisecond)
	if !m.Loaded("a") {
		t.Fatalf("timer survived auto-unload being switched off")
	}
	if st := m.Status(); st.Loaded[0].TimerArmed || st.Policy.AutoUnloadJIT {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestKeepLastJITVictims(t *testing.T) {
	got := keepLastJITVictims([]string{"c", "a", "b", "d"}, map[string]bool{"b": true}, "d")
	if want := []string{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("victims = %v, want %v", got, want)
	}
	if got := keepLastJITVictims([]string{"a"}, nil, "a"); len(got) != 0 {
		t.Fatalf("keep must never be a victim: %v", got)
	}
}

func TestOnlyKeepLastJITModel(t *testing.T) {
	p := jitPolicy(time.Minute)
	p.OnlyKeepLastJITModel = true
	m, _, _ := newTestManager(t, p, localDesc("a"), localDesc("b"), localDesc("c"))
	ctx := testCtx(t)
	if err := m.EnsureModelLoaded(ctx, "a", OriginManual); err != nil {
		t.Fatalf("ensure a: %v", err)
	}
	if err := m.EnsureModelLoaded(ctx, "b", OriginJIT); err != nil {
		t.Fatalf("ensure b: %v", err)
	}
	if err := m.EnsureModelLoaded(ctx, "c", OriginJIT); err != nil {
		t.Fatalf("ensure c: %v", err)
	}
	if !m.Loaded("a") || m.Loaded("b") || !m.Loaded("c") {
		t.Fatalf("unexpected residency: a=%v b=%v c=%v", m.Loaded("a"), m.Loaded("b"), m.Loaded("c"))
	}
}
