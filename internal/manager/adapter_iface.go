package manager

import (
	"context"

	"relayd/pkg/types"
)

// Client is the uniform capability surface of a loaded model runtime.
// Implementations must make CancelActive safe to call concurrently with a
// running Text/TextStream, and Unload/UnloadAndWait safe to call more than once.
type Client interface {
	// Text generates a whole completion for in.
	Text(ctx context.Context, in Input) (string, error)
	// TextStream generates a completion, invoking onChunk per decoded chunk.
	// A non-nil error from onChunk stops generation and is returned as is.
	// It must return when ctx is canceled.
	TextStream(ctx context.Context, in Input, onChunk func(string) error) error
	// CancelActive aborts the generation in progress, if any.
	CancelActive()
	// Unload releases the runtime without waiting for in-flight work.
	Unload() error
	// UnloadAndWait releases the runtime and waits until resources are freed.
	UnloadAndWait(ctx context.Context) error
}

// Embedder is implemented by clients whose model was loaded for
// embeddings. Vectors come back in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Input is one generation request. Prompt is the rendered chat template;
// runtimes that template on their own side read Messages instead.
type Input struct {
	Messages []types.Message
	Prompt   string
	Params   types.GenerationParams
}

// LoadParams is the explicit parameter set applied to a runtime at load time.
type LoadParams struct {
	ModelPath      string
	ProjectorPath  string
	Format         types.Format
	Threads        int
	ContextLength  int
	GPULayers      int
	BatchSize      int
	FlashAttention bool
	KVCache        types.KVCacheSettings
	// Embedding loads the model for embeddings instead of generation.
	Embedding bool
}

// ClientFactory constructs a client for a local descriptor.
type ClientFactory interface {
	NewClient(ctx context.Context, desc types.Descriptor, lp LoadParams) (Client, error)
}

// ClientFactoryFunc adapts a function to ClientFactory.
type ClientFactoryFunc func(ctx context.Context, desc types.Descriptor, lp LoadParams) (Client, error)

func (f ClientFactoryFunc) NewClient(ctx context.Context, desc types.Descriptor, lp LoadParams) (Client, error) {
	return f(ctx, desc, lp)
}
