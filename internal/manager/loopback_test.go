package manager

import (
	"testing"
	"time"

	"relayd/pkg/types"
)

func TestLoopbackStartsForVisionAndStopsWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	proj := writeFile(t, dir, "mmproj-model.gguf")
	vis := localDesc("vis")
	vis.Kind = types.LocalKind{ModelRef: writeFile(t, dir, "vis.gguf"), Format: types.FormatGGUF, ProjectorRef: proj}
	m, _, lb := newTestManager(t, jitPolicy(time.Minute), vis, localDesc("txt"))
	ctx := testCtx(t)

	if err := m.EnsureModelLoaded(ctx, "txt", OriginJIT); err != nil {
		t.Fatalf("ensure txt: %v", err)
	}
	if lb.Running() {
		t.Fatalf("text model should not start loopback")
	}
	if err := m.EnsureModelLoaded(ctx, "vis", OriginJIT); err != nil {
		t.Fatalf("ensure vis: %v", err)
	}
	if !lb.Running() || lb.last.ProjectorPath != proj {
		t.Fatalf("loopback not started with projector: %+v", lb.last)
	}
	if !m.Status().LoopbackRunning {
		t.Fatalf("status should report loopback")
	}
	if err := m.UnloadModel("vis"); err != nil {
		t.Fatalf("unload vis: %v", err)
	}
	if !lb.Running() {
		t.Fatalf("loopback stopped while pool still holds txt")
	}
	if err := m.UnloadModel("txt"); err != nil {
		t.Fatalf("unload txt: %v", err)
	}
	if lb.Running() || lb.stops != 1 {
		t.Fatalf("expected one stop once empty, running=%v stops=%d", lb.Running(), lb.stops)
	}
}

func TestLoopbackForTaggedModelWithoutProjector(t *testing.T) {
	d := localDesc("v")
	d.Tags = []string{"Multimodal"}
	m, _, lb := newTestManager(t, jitPolicy(time.Minute), d)
	if err := m.EnsureModelLoaded(testCtx(t), "v", OriginJIT); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if lb.starts != 1 {
		t.Fatalf("expected loopback start for tagged model")
	}
}

func TestMissingProjectorFileDoesNotNeedLoopback(t *testing.T) {
	d := localDesc("p")
	d.Kind = types.LocalKind{ModelRef: "/m/p.gguf", Format: types.FormatGGUF, ProjectorRef: "/does/not/exist.gguf"}
	if needsLoopback(d, d.Kind.(types.LocalKind)) {
		t.Fatalf("absent projector should not require loopback")
	}
}

func TestLoopbackRestartsForDifferentProjector(t *testing.T) {
	dir := t.TempDir()
	projA := writeFile(t, dir, "mmproj-a.gguf")
	projB := writeFile(t, dir, "mmproj-b.gguf")
	a := localDesc("a")
	a.Kind = types.LocalKind{ModelRef: writeFile(t, dir, "a.gguf"), Format: types.FormatGGUF, ProjectorRef: projA}
	a2 := localDesc("a2")
	a2.Kind = types.LocalKind{ModelRef: writeFile(t, dir, "a2.gguf"), Format: types.FormatGGUF, ProjectorRef: projA}
	b := localDesc("b")
	b.Kind = types.LocalKind{ModelRef: writeFile(t, dir, "b.gguf"), Format: types.FormatGGUF, ProjectorRef: projB}
	m, _, lb := newTestManager(t, jitPolicy(time.Minute), a, a2, b)
	ctx := testCtx(t)

	for _, id := range []string{"a", "a2"} {
		if err := m.EnsureModelLoaded(ctx, id, OriginJIT); err != nil {
			t.Fatalf("ensure %s: %v", id, err)
		}
	}
	if lb.starts != 1 {
		t.Fatalf("same projector should reuse the loopback, starts=%d", lb.starts)
	}
	if err := m.EnsureModelLoaded(ctx, "b", OriginJIT); err != nil {
		t.Fatalf("ensure b: %v", err)
	}
	if lb.starts != 2 || lb.stops != 1 || lb.last.ProjectorPath != projB {
		t.Fatalf("expected restart with %s, starts=%d stops=%d last=%+v", projB, lb.starts, lb.stops, lb.last)
	}
}
