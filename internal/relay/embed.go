package relay

import (
	"context"
	"fmt"
	"time"

	"relayd/internal/manager"
	"relayd/pkg/types"
)

// EmbedRequest asks for one vector per input text.
type EmbedRequest struct {
	Meta
	Model string
	Input []string
}

// EmbedResult holds vectors in input order.
type EmbedResult struct {
	ModelID string
	Vectors [][]float32
	Usage   types.Usage
}

// Dimension is the vector length, or 0 when there are no vectors.
func (r EmbedResult) Dimension() int {
	if len(r.Vectors) == 0 {
		return 0
	}
	return len(r.Vectors[0])
}

// Embed runs the inputs through a local model loaded for embeddings. It
// shares the model's admission slot with generation.
func (e *Engine) Embed(ctx context.Context, req EmbedRequest) (res EmbedResult, err error) {
	start := time.Now()
	defer func() {
		ar := Result{ModelID: res.ModelID, FinishReason: finishStop, Usage: res.Usage}
		e.audit(KindEmbedding, req.Meta, req.Model, start, &ar, &err)
	}()
	desc, ok := e.pool.Resolve(req.Model)
	if !ok {
		return res, manager.ErrNotConfigured(req.Model, "")
	}
	res.ModelID = desc.ID
	if !desc.IsLocal() || !manager.IsEmbeddingModel(desc) {
		return res, fmt.Errorf("%s: %w", desc.ID, ErrEmbeddingsUnsupported)
	}
	lease, err := e.pool.Acquire(ctx, desc.ID, manager.OriginJIT)
	if err != nil {
		return res, err
	}
	defer lease.Release()
	emb, ok := lease.Client.(manager.Embedder)
	if !ok {
		return res, fmt.Errorf("%s: %w", desc.ID, ErrEmbeddingsUnsupported)
	}
	vecs, err := emb.Embed(ctx, req.Input)
	if err != nil {
		return res, err
	}
	if len(vecs) != len(req.Input) {
		return res, fmt.Errorf("%s returned %d vectors for %d inputs", desc.ID, len(vecs), len(req.Input))
	}
	res.Vectors = vecs
	for _, in := range req.Input {
		res.Usage.PromptTokens += EstimateTokens(in)
	}
	res.Usage.TotalTokens = res.Usage.PromptTokens
	return res, nil
}
