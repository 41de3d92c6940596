package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"relayd/internal/relay"
	"relayd/pkg/types"
)

// chatCompletions godoc
// @Summary      Chat completion (OpenAI)
// @Description  Set stream=true for server-sent events terminated by [DONE].
// @Tags         openai
// @Accept       json
// @Produce      json
// @Param        request body types.ChatCompletionRequest true "Chat request"
// @Success      200 {object} types.ChatCompletionResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      502 {object} types.ErrorResponse
// @Router       /v1/chat/completions [post]
func (a *api) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var body types.ChatCompletionRequest
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

	req := relay.ChatRequest{Meta: metaOf(r), Model: body.Model, Messages: body.Messages, Params: body.Params()}
	id := "chatcmpl-" + ulid.Make().String()
	created := time.Now().Unix()

	if !body.Stream {
		res, err := a.svc.PerformChat(ctx, req)
		if err != nil {
			l.end(writeServiceError(w, err), err)
			return
		}
		if timedOut(ctx, r, res) {
			l.end(writeServiceError(w, errGenerationTimeout), errGenerationTimeout)
			return
		}
		writeJSON(w, http.StatusOK, types.ChatCompletionResponse{
			ID:      id,
			Object:  "chat.completion",
			Created: created,
			Model:   body.Model,
			Choices: []types.ChatChoice{{
				Message:      types.Message{Role: types.RoleAssistant, Content: res.Content},
				FinishReason: res.FinishReason,
			}},
			Usage: res.Usage,
		})
		l.end(http.StatusOK, nil)
		return
	}

	s := newFrameStream(w, l, framingSSE)
	chunk := func(delta types.ChunkDelta, finish *string, usage *types.Usage) types.ChatCompletionChunk {
		return types.ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   body.Model,
			Choices: []types.ChunkChoice{{Delta: delta, FinishReason: finish}},
			Usage:   usage,
		}
	}
	first := true
	res, err := a.svc.StreamChat(ctx, req, func(text string) error {
		d := types.ChunkDelta{Content: text}
		if first {
			d.Role = types.RoleAssistant
			first = false
		}
		return s.send(chunk(d, nil, nil))
	})
	if err != nil {
		l.end(s.fail(err), err)
		return
	}
	finish := res.FinishReason
	_ = s.send(chunk(types.ChunkDelta{}, &finish, &res.Usage))
	s.done()
	l.end(http.StatusOK, nil)
}

// completions godoc
// @Summary      Text completion (OpenAI)
// @Tags         openai
// @Accept       json
// @Produce      json
// @Param        request body types.CompletionRequest true "Completion request"
// @Success      200 {object} types.CompletionResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /v1/completions [post]
func (a *api) completions(w http.ResponseWriter, r *http.Request) {
	var body types.CompletionRequest
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

	req := relay.CompletionRequest{Meta: metaOf(r), Model: body.Model, Prompt: body.Prompt, Params: body.Params()}
	id := "cmpl-" + ulid.Make().String()
	created := time.Now().Unix()
	reply := func(text string, finish *string, usage *types.Usage) types.CompletionResponse {
		return types.CompletionResponse{
			ID:      id,
			Object:  "text_completion",
			Created: created,
			Model:   body.Model,
			Choices: []types.CompletionChoice{{Text: text, FinishReason: finish}},
			Usage:   usage,
		}
	}

	if !body.Stream {
		res, err := a.svc.PerformCompletion(ctx, req)
		if err != nil {
			l.end(writeServiceError(w, err), err)
			return
		}
		if timedOut(ctx, r, res) {
			l.end(writeServiceError(w, errGenerationTimeout), errGenerationTimeout)
			return
		}
		writeJSON(w, http.StatusOK, reply(res.Content, &res.FinishReason, &res.Usage))
		l.end(http.StatusOK, nil)
		return
	}

	s := newFrameStream(w, l, framingSSE)
	res, err := a.svc.StreamCompletion(ctx, req, func(text string) error {
		return s.send(reply(text, nil, nil))
	})
	if err != nil {
		l.end(s.fail(err), err)
		return
	}
	_ = s.send(reply("", &res.FinishReason, &res.Usage))
	s.done()
	l.end(http.StatusOK, nil)
}

// responses godoc
// @Summary      Threaded response (OpenAI Responses)
// @Description  previous_response_id continues a conversation held by the relay.
// @Tags         openai
// @Accept       json
// @Produce      json
// @Param        request body types.ResponsesRequest true "Response request"
// @Success      200 {object} types.ResponsesResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /v1/responses [post]
func (a *api) responses(w http.ResponseWriter, r *http.Request) {
	var body types.ResponsesRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Input) == "" {
		writeJSONError(w, http.StatusBadRequest, "input is required")
		return
	}
	noteModel(r, body.Model)
	l := startReqLog(r, body.Model)
	ctx, cancel := generationContext(r)
	defer cancel()

	res, err := a.svc.PerformResponse(ctx, relay.ResponseRequest{
		Meta:               metaOf(r),
		Model:              body.Model,
		Input:              body.Input,
		Instructions:       body.Instructions,
		PreviousResponseID: body.PreviousResponseID,
		Params:             body.Params(),
	})
	if err != nil {
		l.end(writeServiceError(w, err), err)
		return
	}
	if timedOut(ctx, r, res.Result) {
		l.end(writeServiceError(w, errGenerationTimeout), errGenerationTimeout)
		return
	}
	status := "completed"
	if res.FinishReason != types.FinishStop {
		status = "incomplete"
	}
	writeJSON(w, http.StatusOK, types.ResponsesResponse{
		ID:           res.ID,
		Object:       "response",
		CreatedAt:    time.Now().Unix(),
		Model:        body.Model,
		Status:       status,
		FinishReason: res.FinishReason,
		Output: []types.ResponseOutput{{
			Type:    "message",
			Role:    types.RoleAssistant,
			Content: []types.ResponseContent{{Type: "output_text", Text: res.Content}},
		}},
		OutputText: res.Content,
		Usage:      res.Usage,
	})
	l.end(http.StatusOK, nil)
}
