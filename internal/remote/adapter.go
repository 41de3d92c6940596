// Package remote sends chat requests to configured remote backends
// (Ollama, LM Studio, OpenAI-compatible) and normalizes their replies.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"relayd/pkg/types"
)

const (
	// DefaultTimeout applies when a backend sets none.
	DefaultTimeout = 120 * time.Second
	maxErrorBody   = 512
	maxReplyBody   = 16 << 20
)

// ErrEmptyResponse is returned when a backend reply carries no content.
var ErrEmptyResponse = errors.New("remote backend returned no content")

// NetworkError is a transport failure or non-2xx reply from a backend.
type NetworkError struct {
	Backend string
	Status  int
	Body    string
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("backend %s: %v", e.Backend, e.Err)
	case e.Body != "":
		return fmt.Sprintf("backend %s: http %d: %s", e.Backend, e.Status, e.Body)
	default:
		return fmt.Sprintf("backend %s: http %d", e.Backend, e.Status)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Reply is a normalized backend answer. Usage is nil when the backend did
// not report token counts.
type Reply struct {
	Content string
	Usage   *types.Usage
}

// Adapter performs one request per call; it never retries.
type Adapter struct {
	client *http.Client
	log    zerolog.Logger
}

// New returns an Adapter. A nil client selects a client with no overall
// timeout; per-backend deadlines come from the request context.
func New(client *http.Client, log zerolog.Logger) *Adapter {
	if client == nil {
		client = &http.Client{}
	}
	return &Adapter{client: client, log: log.With().Str("component", "remote").Logger()}
}

// Chat sends messages to backend for remoteModel.
func (a *Adapter) Chat(ctx context.Context, backend types.Backend, remoteModel string, msgs []types.Message, p types.GenerationParams) (Reply, error) {
	body, err := BuildBody(backend.Dialect, remoteModel, msgs, p)
	if err != nil {
		return Reply{}, fmt.Errorf("build request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, backend.Timeout(DefaultTimeout))
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.ChatURL, bytes.NewReader(body))
	if err != nil {
		return Reply{}, &NetworkError{Backend: backend.ID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if backend.AuthValue != "" {
		h := backend.AuthHeader
		if h == "" {
			h = "Authorization"
		}
		req.Header.Set(h, backend.AuthValue)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return Reply{}, &NetworkError{Backend: backend.ID, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return Reply{}, &NetworkError{Backend: backend.ID, Status: resp.StatusCode, Err: err}
	}
	a.log.Debug().
		Str("backend", backend.ID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("remote chat")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Reply{}, &NetworkError{Backend: backend.ID, Status: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}
	return ParseReply(raw)
}

// BuildBody renders the dialect-specific request body.
func BuildBody(d types.Dialect, model string, msgs []types.Message, p types.GenerationParams) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}
	set("model", model)
	set("messages", msgs)
	if d == types.DialectOllama {
		if p.Temperature != nil {
			set("options.temperature", *p.Temperature)
		}
		if p.MaxTokens != nil {
			set("options.num_predict", *p.MaxTokens)
		}
		if p.TopP != nil {
			set("options.top_p", *p.TopP)
		}
		if p.TopK != nil {
			set("options.top_k", *p.TopK)
		}
	} else {
		if p.Temperature != nil {
			set("temperature", *p.Temperature)
		}
		if p.MaxTokens != nil {
			set("max_tokens", *p.MaxTokens)
		}
		if p.TopP != nil {
			set("top_p", *p.TopP)
		}
	}
	set("stream", false)
	return body, err
}

// contentPaths are tried in order against the reply.
var contentPaths = []string{
	"choices.0.message.content",
	"choices.0.text",
	"message.content",
	"response",
}

// ParseReply extracts content and usage from a backend body.
func ParseReply(raw []byte) (Reply, error) {
	if !gjson.ValidBytes(raw) {
		if s := strings.TrimSpace(string(raw)); s != "" {
			return Reply{Content: s}, nil
		}
		return Reply{}, ErrEmptyResponse
	}
	var r Reply
	for _, path := range contentPaths {
		if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.Str != "" {
			r.Content = v.Str
			break
		}
	}
	if r.Content == "" {
		return Reply{}, ErrEmptyResponse
	}
	r.Usage = parseUsage(raw)
	return r, nil
}

func parseUsage(raw []byte) *types.Usage {
	res := gjson.GetManyBytes(raw, "usage.prompt_tokens", "usage.completion_tokens", "prompt_eval_count", "eval_count")
	var u types.Usage
	switch {
	case res[0].Exists() || res[1].Exists():
		u.PromptTokens, u.CompletionTokens = int(res[0].Int()), int(res[1].Int())
	case res[2].Exists() || res[3].Exists():
		u.PromptTokens, u.CompletionTokens = int(res[2].Int()), int(res[3].Int())
	default:
		return nil
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return &u
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
