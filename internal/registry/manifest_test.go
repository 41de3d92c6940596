package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"relayd/pkg/types"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const manifestYAML = `
backends:
  - id: lab-ollama
    chat_url: http://10.0.0.5:11434/api/chat
    dialect: ollama
    timeout_seconds: 30
  - id: openai
    chat_url: https://api.openai.com/v1/chat/completions
    dialect: openai
    auth_value: Bearer sk-test
models:
  - id: llama3-lab
    backend: lab-ollama
    remote_model: llama3:8b
    tags: [remote]
  - id: gpt-4o-mini
    backend: openai
  - id: phi
    path: /opt/models/phi-3-mini-Q4_K_M.gguf
    settings:
      threads: 8
      flash_attention: true
      kv_cache: {enabled: true, type_k: Q8_0, type_v: Q8_0}
      defaults: {temperature: 0.2, stop: ["<|end|>"]}
`

func TestLoadManifest_YAML(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, "models.yaml", manifestYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	descs, err := m.Descriptors()
	if err != nil {
		t.Fatalf("descriptors: %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(descs))
	}
	rk, ok := descs[0].Kind.(types.RemoteKind)
	if !ok || rk.BackendRef != "lab-ollama" || rk.RemoteModelRef != "llama3:8b" || descs[0].Provider != "ollama" {
		t.Fatalf("unexpected remote descriptor: %+v", descs[0])
	}
	if rk := descs[1].Kind.(types.RemoteKind); rk.RemoteModelRef != "gpt-4o-mini" {
		t.Fatalf("remote model should default to id: %+v", rk)
	}
	phi := descs[2]
	lk, ok := phi.Kind.(types.LocalKind)
	if !ok || lk.Format != types.FormatGGUF || phi.Quant != "Q4_K_M" {
		t.Fatalf("unexpected local descriptor: %+v", phi)
	}
	if phi.Settings.Threads != 8 || !phi.Settings.FlashAttention || phi.Settings.KVCache.TypeK != "Q8_0" {
		t.Fatalf("settings: %+v", phi.Settings)
	}
	if phi.Settings.Defaults.Temperature == nil || *phi.Settings.Defaults.Temperature != 0.2 {
		t.Fatalf("defaults: %+v", phi.Settings.Defaults)
	}
	if b := m.BackendMap()["lab-ollama"]; b.TimeoutSeconds != 30 || b.Dialect != types.DialectOllama {
		t.Fatalf("backend: %+v", b)
	}
}

func TestLoadManifest_JSON(t *testing.T) {
	p := writeManifest(t, "models.json", `{"backends":[{"id":"lms","chat_url":"http://127.0.0.1:1234/v1/chat/completions","dialect":"lmstudio"}],"models":[{"id":"qwen","backend":"lms"}]}`)
	m, err := LoadManifest(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m.Models) != 1 || m.Backends[0].Dialect != types.DialectLMStudio {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

func TestLoadManifest_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown backend": "models:\n  - id: a\n    backend: nope\n",
		"both kinds":      "backends:\n  - {id: b, chat_url: 'http://x/api/chat', dialect: ollama}\nmodels:\n  - {id: a, backend: b, path: /m.gguf}\n",
		"neither kind":    "models:\n  - id: a\n",
		"bad dialect":     "backends:\n  - {id: b, chat_url: 'http://x/api/chat', dialect: grpc}\n",
		"bad kv type":     "models:\n  - id: a\n    path: /m.gguf\n    settings: {kv_cache: {type_k: Q3}}\n",
		"duplicate id":    "models:\n  - {id: a, path: /a.gguf}\n  - {id: a, path: /b.gguf}\n",
	}
	for name, body := range cases {
		if _, err := LoadManifest(writeManifest(t, "m.yaml", body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		} else if !strings.Contains(err.Error(), "invalid manifest") {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}
}

func TestMerge_DeclaredOverridesScanned(t *testing.T) {
	scanned := []types.Descriptor{{ID: "b.gguf", DisplayName: "scanned"}, {ID: "a.gguf"}}
	declared := []types.Descriptor{{ID: "b.gguf", DisplayName: "declared"}, {ID: "remote"}}
	out := Merge(scanned, declared)
	if len(out) != 3 || out[0].ID != "a.gguf" || out[1].DisplayName != "declared" || out[2].ID != "remote" {
		t.Fatalf("unexpected merge: %+v", out)
	}
}

func TestManifest_RelativePathsResolveAgainstManifestDir(t *testing.T) {
	p := writeManifest(t, "models.toml", `
[[models]]
id = "tiny"
path = "weights/tiny-Q8_0.gguf"
projector = "weights/mmproj-tiny.gguf"
`)
	m, err := LoadManifest(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	descs, err := m.Descriptors()
	if err != nil {
		t.Fatalf("descriptors: %v", err)
	}
	lk := descs[0].Kind.(types.LocalKind)
	dir := filepath.Dir(p)
	if lk.ModelRef != filepath.Join(dir, "weights/tiny-Q8_0.gguf") {
		t.Fatalf("model path not anchored: %q", lk.ModelRef)
	}
	if lk.ProjectorRef != filepath.Join(dir, "weights/mmproj-tiny.gguf") {
		t.Fatalf("projector path not anchored: %q", lk.ProjectorRef)
	}
	if descs[0].Quant != "Q8_0" {
		t.Fatalf("quant: %q", descs[0].Quant)
	}
}
