package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"relayd/pkg/types"
)

// llamaServerClient is a Client backed by a dedicated llama-server process.
// Generation goes through the server's OpenAI-compatible endpoint.
type llamaServerClient struct {
	proc  *llamaProcess
	api   openai.Client
	model string

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func newLlamaServerClient(proc *llamaProcess, model string) *llamaServerClient {
	api := openai.NewClient(
		option.WithBaseURL(proc.baseURL+"/v1/"),
		option.WithAPIKey("no-key"),
		option.WithMaxRetries(0),
	)
	return &llamaServerClient{proc: proc, api: api, model: model}
}

// chatParams maps an Input onto an OpenAI chat request. Stop sequences are
// left to the caller, which enforces them across chunk boundaries.
func chatParams(model string, in Input) (openai.ChatCompletionNewParams, []option.RequestOption) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages)+1)
	for _, msg := range in.Messages {
		switch msg.Role {
		case types.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(msg.Content))
		default:
			msgs = append(msgs, openai.UserMessage(msg.Content))
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, openai.UserMessage(in.Prompt))
	}
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	gp := in.Params
	if gp.Temperature != nil {
		p.Temperature = openai.Float(*gp.Temperature)
	}
	if gp.TopP != nil {
		p.TopP = openai.Float(*gp.TopP)
	}
	if gp.MaxTokens != nil && *gp.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(*gp.MaxTokens))
	}
	if gp.PresencePenalty != nil {
		p.PresencePenalty = openai.Float(*gp.PresencePenalty)
	}
	if gp.FrequencyPenalty != nil {
		p.FrequencyPenalty = openai.Float(*gp.FrequencyPenalty)
	}
	if gp.Seed != nil {
		p.Seed = openai.Int(*gp.Seed)
	}
	var opts []option.RequestOption
	if gp.TopK != nil {
		// llama-server extension
		opts = append(opts, option.WithJSONSet("top_k", *gp.TopK))
	}
	return p, opts
}

func (c *llamaServerClient) begin(ctx context.Context) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, errors.New("llama-server client is unloaded")
	}
	gctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return gctx, func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}, nil
}

func (c *llamaServerClient) Text(ctx context.Context, in Input) (string, error) {
	var b strings.Builder
	err := c.TextStream(ctx, in, func(s string) error {
		b.WriteString(s)
		return nil
	})
	return b.String(), err
}

func (c *llamaServerClient) TextStream(ctx context.Context, in Input, onChunk func(string) error) error {
	gctx, done, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	params, opts := chatParams(c.model, in)
	stream := c.api.Chat.Completions.NewStreaming(gctx, params, opts...)
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if frag := chunk.Choices[0].Delta.Content; frag != "" {
			if err := onChunk(frag); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		if gctx.Err() != nil {
			return gctx.Err()
		}
		return err
	}
	return nil
}

// Embed asks the server's /v1/embeddings endpoint. The process must have
// been started with --embeddings.
func (c *llamaServerClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	gctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	resp, err := c.api.Embeddings.New(gctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(c.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		if gctx.Err() != nil {
			return nil, gctx.Err()
		}
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("llama-server returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("llama-server returned embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func (c *llamaServerClient) CancelActive() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *llamaServerClient) Unload() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.CancelActive()
	go func() { _ = c.proc.Stop() }()
	return nil
}

func (c *llamaServerClient) UnloadAndWait(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.CancelActive()
	done := make(chan struct{})
	go func() {
		_ = c.proc.Stop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
