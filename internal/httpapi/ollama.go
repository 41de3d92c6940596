package httpapi

import (
	"net/http"
	"strings"
	"time"

	"relayd/internal/relay"
	"relayd/pkg/types"
)

func ollamaTime() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func wantsStream(v *bool) bool { return v == nil || *v }

// ollamaChat godoc
// @Summary      Chat (Ollama)
// @Description  Streams NDJSON unless stream is false.
// @Tags         ollama
// @Accept       json
// @Produce      json
// @Param        request body types.OllamaChatRequest true "Chat request"
// @Success      200 {object} types.OllamaChatResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/chat [post]
func (a *api) ollamaChat(w http.ResponseWriter, r *http.Request) {
	var body types.OllamaChatRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages are required")
		return
	}
	noteModel(r, body.Model)
	l := startReqLog(r, body.Model)
	ctx, cancel := generationContext(r)
	defer cancel()

	req := relay.ChatRequest{Meta: metaOf(r), Model: body.Model, Messages: body.Messages, Params: body.Options.Params()}
	start := time.Now()
	final := func(res relay.Result, msg *types.Message) types.OllamaChatResponse {
		return types.OllamaChatResponse{
			Model:           body.Model,
			CreatedAt:       ollamaTime(),
			Message:         msg,
			Done:            true,
			DoneReason:      res.FinishReason,
			PromptEvalCount: res.Usage.PromptTokens,
			EvalCount:       res.Usage.CompletionTokens,
			TotalDuration:   time.Since(start).Nanoseconds(),
		}
	}

	if !wantsStream(body.Stream) {
		res, err := a.svc.PerformChat(ctx, req)
		if err != nil {
			l.end(writeServiceError(w, err), err)
			return
		}
		if timedOut(ctx, r, res) {
			l.end(writeServiceError(w, errGenerationTimeout), errGenerationTimeout)
			return
		}
		writeJSON(w, http.StatusOK, final(res, &types.Message{Role: types.RoleAssistant, Content: res.Content}))
		l.end(http.StatusOK, nil)
		return
	}

	s := newFrameStream(w, l, framingNDJSON)
	res, err := a.svc.StreamChat(ctx, req, func(text string) error {
		return s.send(types.OllamaChatResponse{
			Model:     body.Model,
			CreatedAt: ollamaTime(),
			Message:   &types.Message{Role: types.RoleAssistant, Content: text},
		})
	})
	if err != nil {
		l.end(s.fail(err), err)
		return
	}
	_ = s.send(final(res, &types.Message{Role: types.RoleAssistant}))
	l.end(http.StatusOK, nil)
}

// ollamaGenerate godoc
// @Summary      Generate (Ollama)
// @Description  Streams NDJSON unless stream is false.
// @Tags         ollama
// @Accept       json
// @Produce      json
// @Param        request body types.OllamaGenerateRequest true "Generate request"
// @Success      200 {object} types.OllamaGenerateResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/generate [post]
func (a *api) ollamaGenerate(w http.ResponseWriter, r *http.Request) {
	var body types.OllamaGenerateRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	noteModel(r, body.Model)
	l := startReqLog(r, body.Model)
	ctx, cancel := generationContext(r)
	defer cancel()

	req := relay.CompletionRequest{Meta: metaOf(r), Model: body.Model, Prompt: body.Prompt, Params: body.Options.Params()}
	start := time.Now()
	final := func(res relay.Result, text string) types.OllamaGenerateResponse {
		return types.OllamaGenerateResponse{
			Model:           body.Model,
			CreatedAt:       ollamaTime(),
			Response:        text,
			Done:            true,
			DoneReason:      res.FinishReason,
			PromptEvalCount: res.Usage.PromptTokens,
			EvalCount:       res.Usage.CompletionTokens,
			TotalDuration:   time.Since(start).Nanoseconds(),
		}
	}

	if !wantsStream(body.Stream) {
		res, err := a.svc.PerformCompletion(ctx, req)
		if err != nil {
			l.end(writeServiceError(w, err), err)
			return
		}
		if timedOut(ctx, r, res) {
			l.end(writeServiceError(w, errGenerationTimeout), errGenerationTimeout)
			return
		}
		writeJSON(w, http.StatusOK, final(res, res.Content))
		l.end(http.StatusOK, nil)
		return
	}

	s := newFrameStream(w, l, framingNDJSON)
	res, err := a.svc.StreamCompletion(ctx, req, func(text string) error {
		return s.send(types.OllamaGenerateResponse{Model: body.Model, CreatedAt: ollamaTime(), Response: text})
	})
	if err != nil {
		l.end(s.fail(err), err)
		return
	}
	_ = s.send(final(res, ""))
	l.end(http.StatusOK, nil)
}
