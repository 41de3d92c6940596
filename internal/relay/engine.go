// Package relay normalizes chat, completion and response requests onto
// local pooled clients or remote backends, and fronts the pool, catalog
// and presence registry for the HTTP layer.
package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"relayd/internal/catalog"
	"relayd/internal/manager"
	"relayd/internal/presence"
	"relayd/internal/remote"
	"relayd/internal/sessions"
	"relayd/pkg/types"
)

const (
	finishStop      = types.FinishStop
	finishLength    = types.FinishLength
	finishCancelled = types.FinishCancelled
	finishError     = "error"
)

// Call kinds reported in the audit line.
const (
	KindChat             = "chat"
	KindChatStream       = "chat.stream"
	KindCompletion       = "completion"
	KindCompletionStream = "completion.stream"
	KindResponse         = "response"
	KindEmbedding        = "embedding"
)

// ErrStreamingUnsupported is returned when streaming is requested for a
// model that can only answer whole.
var ErrStreamingUnsupported = errors.New("streaming is not supported for remote models")

// ErrEmbeddingsUnsupported is returned when the resolved model cannot
// produce embeddings.
var ErrEmbeddingsUnsupported = errors.New("model does not support embeddings")

// errHalt stops a client stream once the stop gate has decided.
var errHalt = errors.New("halt")

// Pool is the subset of the loaded-client pool the engine needs.
type Pool interface {
	Resolve(name string) (types.Descriptor, bool)
	Acquire(ctx context.Context, modelID string, origin manager.Origin) (*manager.Lease, error)
	EnsureModelLoaded(ctx context.Context, modelID string, origin manager.Origin) error
	UnloadModel(modelID string) error
	Descriptors() []types.Descriptor
	Status() types.StatusResponse
	Ready() bool
	UpdateDescriptors(descs []types.Descriptor)
}

// RemoteChatter sends one non-streaming chat to a remote backend.
type RemoteChatter interface {
	Chat(ctx context.Context, backend types.Backend, remoteModel string, msgs []types.Message, p types.GenerationParams) (remote.Reply, error)
}

// Config wires the engine's collaborators. Sessions, Presence and Catalog
// default to fresh in-memory instances.
type Config struct {
	Pool     Pool
	Remote   RemoteChatter
	Backends map[string]types.Backend
	Sessions *sessions.Store
	Presence *presence.Registry
	Catalog  *catalog.Store
	Logger   *zerolog.Logger
}

// Engine executes relay calls.
type Engine struct {
	pool     Pool
	remote   RemoteChatter
	sessions *sessions.Store
	presence *presence.Registry
	catalog  *catalog.Store
	log      zerolog.Logger

	bmu      sync.RWMutex
	backends map[string]types.Backend
}

// New builds an Engine and seeds the catalog from the pool's descriptors.
func New(cfg Config) *Engine {
	e := &Engine{
		pool:     cfg.Pool,
		remote:   cfg.Remote,
		backends: cfg.Backends,
		sessions: cfg.Sessions,
		presence: cfg.Presence,
		catalog:  cfg.Catalog,
		log:      zerolog.Nop(),
	}
	if cfg.Logger != nil {
		e.log = cfg.Logger.With().Str("component", "relay").Logger()
	}
	if e.remote == nil {
		e.remote = remote.New(nil, e.log)
	}
	if e.backends == nil {
		e.backends = map[string]types.Backend{}
	}
	if e.sessions == nil {
		e.sessions = sessions.New(0)
	}
	if e.presence == nil {
		e.presence = presence.New(0)
	}
	if e.catalog == nil {
		e.catalog = catalog.NewStore()
	}
	e.catalog.SeedFromDescriptors(e.pool.Descriptors())
	return e
}

// Meta identifies a call for auditing.
type Meta struct {
	RequestID string
	Caller    string
}

// ChatRequest is a normalized chat call.
type ChatRequest struct {
	Meta
	Model    string
	Messages []types.Message
	Params   types.GenerationParams
}

// CompletionRequest is a normalized text completion call.
type CompletionRequest struct {
	Meta
	Model  string
	Prompt string
	Params types.GenerationParams
}

// ResponseRequest is one turn of a threaded response session.
type ResponseRequest struct {
	Meta
	Model              string
	Input              string
	Instructions       string
	PreviousResponseID string
	Params             types.GenerationParams
}

// Result is the outcome of a call. ModelID is the canonical descriptor id.
type Result struct {
	ModelID      string
	Content      string
	FinishReason string
	Usage        types.Usage
}

// ResponseResult carries the session id that continues the conversation.
type ResponseResult struct {
	ID string
	Result
}

// PerformChat answers a chat request whole.
func (e *Engine) PerformChat(ctx context.Context, req ChatRequest) (res Result, err error) {
	defer e.audit(KindChat, req.Meta, req.Model, time.Now(), &res, &err)
	return e.chat(ctx, req, nil)
}

// StreamChat answers a chat request, calling onDelta with text as it
// becomes final. Remote models fail with ErrStreamingUnsupported.
func (e *Engine) StreamChat(ctx context.Context, req ChatRequest, onDelta func(string) error) (res Result, err error) {
	defer e.audit(KindChatStream, req.Meta, req.Model, time.Now(), &res, &err)
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	return e.chat(ctx, req, onDelta)
}

// PerformCompletion answers a plain prompt whole.
func (e *Engine) PerformCompletion(ctx context.Context, req CompletionRequest) (res Result, err error) {
	defer e.audit(KindCompletion, req.Meta, req.Model, time.Now(), &res, &err)
	return e.chat(ctx, completionAsChat(req), nil)
}

// StreamCompletion streams the answer to a plain prompt.
func (e *Engine) StreamCompletion(ctx context.Context, req CompletionRequest, onDelta func(string) error) (res Result, err error) {
	defer e.audit(KindCompletionStream, req.Meta, req.Model, time.Now(), &res, &err)
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	return e.chat(ctx, completionAsChat(req), onDelta)
}

// PerformResponse runs one turn of a response session. A previous id bound
// to a different model starts a new session.
func (e *Engine) PerformResponse(ctx context.Context, req ResponseRequest) (res ResponseResult, err error) {
	defer e.audit(KindResponse, req.Meta, req.Model, time.Now(), &res.Result, &err)
	desc, ok := e.pool.Resolve(req.Model)
	if !ok {
		return res, manager.ErrNotConfigured(req.Model, "")
	}
	userMsg := types.Message{Role: types.RoleUser, Content: req.Input}
	id, history := e.sessions.Context(req.PreviousResponseID, desc.ID, userMsg)
	msgs := history
	if req.Instructions != "" {
		msgs = append([]types.Message{{Role: types.RoleSystem, Content: req.Instructions}}, history...)
	}
	out, err := e.execute(ctx, desc, msgs, req.Params, nil)
	if err != nil {
		return ResponseResult{Result: out}, err
	}
	if out.FinishReason == finishCancelled {
		// Nothing was stored; only an existing session id stays valid.
		if id != req.PreviousResponseID {
			id = ""
		}
		return ResponseResult{ID: id, Result: out}, nil
	}
	e.sessions.Persist(id, desc.ID, userMsg, types.Message{Role: types.RoleAssistant, Content: out.Content})
	return ResponseResult{ID: id, Result: out}, nil
}

func completionAsChat(req CompletionRequest) ChatRequest {
	return ChatRequest{
		Meta:     req.Meta,
		Model:    req.Model,
		Messages: []types.Message{{Role: types.RoleUser, Content: req.Prompt}},
		Params:   req.Params,
	}
}

func (e *Engine) chat(ctx context.Context, req ChatRequest, onDelta func(string) error) (Result, error) {
	desc, ok := e.pool.Resolve(req.Model)
	if !ok {
		return Result{ModelID: req.Model}, manager.ErrNotConfigured(req.Model, "")
	}
	return e.execute(ctx, desc, req.Messages, req.Params, onDelta)
}

// execute runs one generation against desc. It is not audited; the public
// entry points are.
func (e *Engine) execute(ctx context.Context, desc types.Descriptor, msgs []types.Message, over types.GenerationParams, onDelta func(string) error) (Result, error) {
	params := desc.Settings.Defaults.Merge(over)
	switch k := desc.Kind.(type) {
	case types.LocalKind:
		return e.executeLocal(ctx, desc, msgs, params, onDelta)
	case types.RemoteKind:
		if onDelta != nil {
			return Result{ModelID: desc.ID}, ErrStreamingUnsupported
		}
		return e.executeRemote(ctx, desc, k, msgs, params)
	default:
		return Result{ModelID: desc.ID}, manager.ErrNotConfigured(desc.ID, "unknown kind")
	}
}

func (e *Engine) executeLocal(ctx context.Context, desc types.Descriptor, msgs []types.Message, params types.GenerationParams, onDelta func(string) error) (Result, error) {
	res := Result{ModelID: desc.ID}
	lease, err := e.pool.Acquire(ctx, desc.ID, manager.OriginJIT)
	if err != nil {
		if ctx.Err() != nil {
			res.FinishReason = finishCancelled
			return res, nil
		}
		return res, err
	}
	defer lease.Release()
	client := lease.Client

	prompt := RenderChatML(msgs)
	in := manager.Input{Messages: msgs, Prompt: prompt, Params: params}
	res.Usage.PromptTokens = EstimateTokens(prompt)
	maxTokens := params.MaxTokensOr(0)

	if onDelta == nil && len(params.Stop) == 0 && maxTokens <= 0 {
		text, err := client.Text(ctx, in)
		res.Content = text
		res.Usage.CompletionTokens = EstimateTokens(text)
		res.Usage.TotalTokens = res.Usage.PromptTokens + res.Usage.CompletionTokens
		if ctx.Err() != nil || (err != nil && lease.Evicted()) {
			client.CancelActive()
			res.FinishReason = finishCancelled
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.FinishReason = finishStop
		return res, nil
	}

	gate := newStopGate(params.Stop, maxTokens)
	err = client.TextStream(ctx, in, func(chunk string) error {
		delta, halt := gate.push(chunk)
		if delta != "" && onDelta != nil {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
		if halt {
			return errHalt
		}
		return nil
	})
	if errors.Is(err, errHalt) {
		client.CancelActive()
		err = nil
	}
	res.Usage.CompletionTokens = gate.count
	res.Usage.TotalTokens = res.Usage.PromptTokens + res.Usage.CompletionTokens
	// A model torn down under us (shutdown) reads as a cancellation.
	if ctx.Err() != nil || (err != nil && lease.Evicted()) {
		client.CancelActive()
		res.Content = gate.text()
		res.FinishReason = finishCancelled
		return res, nil
	}
	if err != nil {
		res.Content = gate.text()
		return res, err
	}
	if tail := gate.flush(); tail != "" && onDelta != nil {
		if err := onDelta(tail); err != nil {
			res.Content = gate.text()
			return res, err
		}
	}
	res.Content = gate.text()
	res.FinishReason = gate.finish
	return res, nil
}

func (e *Engine) executeRemote(ctx context.Context, desc types.Descriptor, k types.RemoteKind, msgs []types.Message, params types.GenerationParams) (Result, error) {
	res := Result{ModelID: desc.ID}
	backend, ok := e.Backend(k.BackendRef)
	if !ok {
		return res, manager.ErrNotConfigured(desc.ID, "unknown backend "+k.BackendRef)
	}
	remoteModel := k.RemoteModelRef
	if remoteModel == "" {
		remoteModel = desc.ID
	}
	reply, err := e.remote.Chat(ctx, backend, remoteModel, msgs, params)
	if err != nil {
		if ctx.Err() != nil {
			res.FinishReason = finishCancelled
			return res, nil
		}
		return res, err
	}
	content, _ := applyStop(reply.Content, params.Stop)
	res.Content = content
	res.FinishReason = finishStop
	if reply.Usage != nil {
		res.Usage = *reply.Usage
	} else {
		res.Usage.PromptTokens = estimateMessages(msgs)
		res.Usage.CompletionTokens = EstimateTokens(content)
	}
	if limit := params.MaxTokensOr(0); limit > 0 && res.Usage.CompletionTokens >= limit {
		res.FinishReason = finishLength
	}
	res.Usage.TotalTokens = res.Usage.PromptTokens + res.Usage.CompletionTokens
	return res, nil
}

// audit writes the single relay_call line for a finished call.
func (e *Engine) audit(kind string, meta Meta, model string, start time.Time, res *Result, errp *error) {
	finish := res.FinishReason
	if *errp != nil {
		finish = finishError
	}
	if res.ModelID != "" {
		model = res.ModelID
	}
	latency := time.Since(start)
	callsTotal.WithLabelValues(kind, finish).Inc()
	callDuration.WithLabelValues(kind).Observe(latency.Seconds())
	tokensTotal.WithLabelValues("prompt").Add(float64(res.Usage.PromptTokens))
	tokensTotal.WithLabelValues("completion").Add(float64(res.Usage.CompletionTokens))

	ev := e.log.Info()
	if *errp != nil {
		ev = e.log.Warn().Err(*errp)
	}
	ev.Str("event", "relay_call").
		Str("kind", kind).
		Str("request_id", shortRequestID(meta.RequestID)).
		Str("caller", meta.Caller).
		Str("model", model).
		Int("prompt_tokens", res.Usage.PromptTokens).
		Int("completion_tokens", res.Usage.CompletionTokens).
		Str("finish_reason", finish).
		Int64("latency_ms", latency.Milliseconds()).
		Send()
}

// shortRequestID trims id for the audit line. Router ids of the form
// host/prefix-counter keep only prefix-counter; other ids keep 8 chars.
// Without an id the random tail of a fresh ULID is used.
func shortRequestID(id string) string {
	if id == "" {
		u := ulid.Make().String()
		return u[len(u)-8:]
	}
	if i := strings.LastIndexByte(id, '/'); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
