//go:build llama

package manager

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"relayd/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// inProcessClient owns a model loaded through go-llama.cpp.
type inProcessClient struct {
	threads int

	// gen serializes Predict calls; the pool admits one at a time anyway.
	gen sync.Mutex

	mu        sync.Mutex
	model     *llama.LLama
	cancelled bool
}

func newInProcessClient(lp LoadParams) (Client, error) {
	if strings.TrimSpace(lp.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	// Configure model options
	mo := []llama.ModelOption{}
	if lp.ContextLength > 0 {
		mo = append(mo, llama.SetContext(lp.ContextLength))
	}
	if lp.GPULayers != 0 {
		mo = append(mo, llama.SetGPULayers(lp.GPULayers))
	}
	if lp.BatchSize > 0 {
		mo = append(mo, llama.SetNBatch(lp.BatchSize))
	}
	if lp.Embedding {
		mo = append(mo, llama.EnableEmbeddings)
	}
	m, err := llama.New(lp.ModelPath, mo...)
	if err != nil {
		return nil, ErrDependencyUnavailable("llama load: " + err.Error())
	}
	return &inProcessClient{model: m, threads: lp.Threads}, nil
}

func (c *inProcessClient) Text(ctx context.Context, in Input) (string, error) {
	var b strings.Builder
	err := c.TextStream(ctx, in, func(s string) error {
		b.WriteString(s)
		return nil
	})
	return b.String(), err
}

func (c *inProcessClient) TextStream(ctx context.Context, in Input, onChunk func(string) error) error {
	c.gen.Lock()
	defer c.gen.Unlock()
	c.mu.Lock()
	model := c.model
	c.cancelled = false
	c.mu.Unlock()
	if model == nil {
		return errors.New("llama model not initialized")
	}

	var cbErr error
	// Bridge token streaming to onChunk and respect cancellation
	model.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil || c.isCancelled() {
			return false
		}
		if err := onChunk(tok); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	_, err := model.Predict(in.Prompt, predictOptions(in.Params, c.threads)...)
	if cbErr != nil {
		return cbErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Embed computes one vector per text. The model must have been loaded
// with embeddings enabled.
func (c *inProcessClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.gen.Lock()
	defer c.gen.Unlock()
	c.mu.Lock()
	model := c.model
	c.cancelled = false
	c.mu.Unlock()
	if model == nil {
		return nil, errors.New("llama model not initialized")
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.isCancelled() {
			return nil, context.Canceled
		}
		vec, err := model.Embeddings(text, llama.SetThreads(max(1, c.threads)))
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (c *inProcessClient) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *inProcessClient) CancelActive() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *inProcessClient) Unload() error {
	c.CancelActive()
	go c.free()
	return nil
}

func (c *inProcessClient) UnloadAndWait(ctx context.Context) error {
	c.CancelActive()
	done := make(chan struct{})
	go func() {
		c.free()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// free waits for any running Predict before releasing the model.
func (c *inProcessClient) free() {
	c.gen.Lock()
	defer c.gen.Unlock()
	c.mu.Lock()
	m := c.model
	c.model = nil
	c.mu.Unlock()
	if m != nil {
		m.Free()
	}
}

// predictOptions converts generation params into go-llama.cpp options.
func predictOptions(p types.GenerationParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(p.MaxTokensOr(llama.DefaultOptions.Tokens)),
		llama.SetThreads(max(1, threads)),
	}
	if p.TopP != nil {
		po = append(po, llama.SetTopP(float32(*p.TopP)))
	}
	if p.TopK != nil {
		po = append(po, llama.SetTopK(*p.TopK))
	}
	if p.Temperature != nil {
		po = append(po, llama.SetTemperature(float32(*p.Temperature)))
	}
	if p.PresencePenalty != nil {
		po = append(po, llama.SetPresencePenalty(float32(*p.PresencePenalty)))
	}
	if p.FrequencyPenalty != nil {
		po = append(po, llama.SetFrequencyPenalty(float32(*p.FrequencyPenalty)))
	}
	if p.Seed != nil {
		po = append(po, llama.SetSeed(int(*p.Seed)))
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}
