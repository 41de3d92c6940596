package httpapi

import (
	"net/http"
	"strings"
	"time"

	"relayd/internal/relay"
	"relayd/pkg/types"
)

// embedInput validates the input list, writing a 400 when it is unusable.
func embedInput(w http.ResponseWriter, in types.EmbeddingInput) ([]string, bool) {
	if len(in) == 0 {
		writeJSONError(w, http.StatusBadRequest, "input is required")
		return nil, false
	}
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			writeJSONError(w, http.StatusBadRequest, "input must not contain empty strings")
			return nil, false
		}
	}
	return in, true
}

// embeddings godoc
// @Summary      Embeddings (OpenAI-compatible)
// @Description  Requires a local model tagged "embedding".
// @Tags         openai
// @Accept       json
// @Produce      json
// @Param        request body types.EmbeddingRequest true "Embedding request"
// @Success      200 {object} types.EmbeddingResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Router       /v1/embeddings [post]
func (a *api) embeddings(w http.ResponseWriter, r *http.Request) {
	var body types.EmbeddingRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.EncodingFormat != "" && body.EncodingFormat != "float" {
		writeJSONError(w, http.StatusBadRequest, "encoding_format must be float")
		return
	}
	input, ok := embedInput(w, body.Input)
	if !ok {
		return
	}
	noteModel(r, body.Model)
	l := startReqLog(r, body.Model)
	ctx, cancel := generationContext(r)
	defer cancel()

	res, err := a.svc.Embed(ctx, relay.EmbedRequest{Meta: metaOf(r), Model: body.Model, Input: input})
	if err != nil {
		l.end(writeServiceError(w, err), err)
		return
	}
	data := make([]types.Embedding, len(res.Vectors))
	for i, v := range res.Vectors {
		data[i] = types.Embedding{Object: "embedding", Index: i, Embedding: v}
	}
	writeJSON(w, http.StatusOK, types.EmbeddingResponse{
		Object: "list",
		Data:   data,
		Model:  body.Model,
		Usage:  types.EmbeddingUsage{PromptTokens: res.Usage.PromptTokens, TotalTokens: res.Usage.TotalTokens},
	})
	l.end(http.StatusOK, nil)
}

// ollamaEmbed godoc
// @Summary      Embeddings (Ollama)
// @Tags         ollama
// @Accept       json
// @Produce      json
// @Param        request body types.OllamaEmbedRequest true "Embed request"
// @Success      200 {object} types.OllamaEmbedResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/embed [post]
func (a *api) ollamaEmbed(w http.ResponseWriter, r *http.Request) {
	var body types.OllamaEmbedRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	input, ok := embedInput(w, body.Input)
	if !ok {
		return
	}
	noteModel(r, body.Model)
	l := startReqLog(r, body.Model)
	ctx, cancel := generationContext(r)
	defer cancel()

	start := time.Now()
	res, err := a.svc.Embed(ctx, relay.EmbedRequest{Meta: metaOf(r), Model: body.Model, Input: input})
	if err != nil {
		l.end(writeServiceError(w, err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.OllamaEmbedResponse{
		Model:           body.Model,
		Embeddings:      res.Vectors,
		PromptEvalCount: res.Usage.PromptTokens,
		TotalDuration:   time.Since(start).Nanoseconds(),
	})
	l.end(http.StatusOK, nil)
}
