package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverridesOnlySetFields(t *testing.T) {
	base := GenerationParams{Temperature: Ptr(0.2), TopK: Ptr(40), Stop: []string{"</s>"}}
	over := GenerationParams{Temperature: Ptr(0.9), MaxTokens: Ptr(64)}

	got := base.Merge(over)
	assert.Equal(t, 0.9, *got.Temperature)
	assert.Equal(t, 40, *got.TopK)
	assert.Equal(t, 64, *got.MaxTokens)
	assert.Equal(t, []string{"</s>"}, got.Stop)
	assert.Nil(t, got.Seed)

	got.Stop[0] = "changed"
	assert.Equal(t, "</s>", base.Stop[0], "merge must not alias the base stop list")
}

func TestMergeStopReplaces(t *testing.T) {
	base := GenerationParams{Stop: []string{"a", "b"}}
	got := base.Merge(GenerationParams{Stop: []string{"c"}})
	assert.Equal(t, []string{"c"}, got.Stop)
}

func TestMaxTokensOr(t *testing.T) {
	assert.Equal(t, 128, GenerationParams{}.MaxTokensOr(128))
	assert.Equal(t, 7, GenerationParams{MaxTokens: Ptr(7)}.MaxTokensOr(128))
}

func TestStopListAcceptsStringOrArray(t *testing.T) {
	cases := []struct {
		in   string
		want StopList
	}{
		{`{"stop":"\n"}`, StopList{"\n"}},
		{`{"stop":["a","b"]}`, StopList{"a", "b"}},
		{`{"stop":""}`, nil},
		{`{"stop":null}`, nil},
		{`{}`, nil},
	}
	for _, c := range cases {
		var req ChatCompletionRequest
		require.NoError(t, json.Unmarshal([]byte(c.in), &req), c.in)
		assert.Equal(t, c.want, req.Stop, c.in)
	}

	var req ChatCompletionRequest
	err := json.Unmarshal([]byte(`{"stop":42}`), &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop must be a string or an array")
}

func TestOllamaOptionsMapNumPredict(t *testing.T) {
	p := OllamaOptions{NumPredict: Ptr(32), Stop: []string{"x"}}.Params()
	assert.Equal(t, 32, p.MaxTokensOr(0))
	assert.Equal(t, []string{"x"}, p.Stop)
}

func TestDescriptorHelpers(t *testing.T) {
	d := Descriptor{ID: "m", Kind: LocalKind{Format: FormatGGUF}, Tags: []string{"Vision"}}
	assert.True(t, d.IsLocal())
	assert.True(t, d.HasTag("vision"))
	assert.False(t, d.HasTag("tools"))

	r := Descriptor{ID: "r", Kind: RemoteKind{BackendRef: "lab", RemoteModelRef: "llama3"}}
	assert.False(t, r.IsLocal())
}

func TestBackendTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, Backend{}.Timeout(30*time.Second))
	assert.Equal(t, 5*time.Second, Backend{TimeoutSeconds: 5}.Timeout(30*time.Second))
}

func TestEmbeddingInputAcceptsStringOrArray(t *testing.T) {
	var one EmbeddingRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"e","input":"hello"}`), &one))
	assert.Equal(t, EmbeddingInput{"hello"}, one.Input)

	var many OllamaEmbedRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"e","input":["a","b"]}`), &many))
	assert.Equal(t, EmbeddingInput{"a", "b"}, many.Input)

	err := json.Unmarshal([]byte(`{"input":[1,2]}`), &one)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input must be a string or an array")
}
