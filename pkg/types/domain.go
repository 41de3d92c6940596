package types

import (
	"strings"
	"time"
)

// Format identifies the on-disk weight format of a local model.
type Format string

const (
	FormatGGUF Format = "gguf"
	FormatMLX  Format = "mlx"
	FormatET   Format = "et"
)

// Kind says how a client is instantiated for a descriptor. It is a closed
// union: LocalKind or RemoteKind.
type Kind interface {
	kind()
}

// LocalKind is a model executed on this host.
type LocalKind struct {
	// Absolute path to the weights.
	ModelRef string
	Format   Format
	// Optional multimodal projector (mmproj) path.
	ProjectorRef string
}

// RemoteKind is a model served by a configured remote backend.
type RemoteKind struct {
	BackendRef     string
	RemoteModelRef string
}

func (LocalKind) kind()  {}
func (RemoteKind) kind() {}

// KVCacheSettings tunes the attention KV cache of a local runtime.
type KVCacheSettings struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	TypeK   string `json:"type_k,omitempty" yaml:"type_k" toml:"type_k" validate:"omitempty,oneof=F32 F16 Q8_0 Q5_0 Q5_1 Q4_0 Q4_1 IQ4_NL"`
	TypeV   string `json:"type_v,omitempty" yaml:"type_v" toml:"type_v" validate:"omitempty,oneof=F32 F16 Q8_0 Q5_0 Q5_1 Q4_0 Q4_1 IQ4_NL"`
}

// ModelSettings are the per-model load tunables handed to a client factory.
// Zero values mean "runtime default".
type ModelSettings struct {
	Threads        int              `json:"threads,omitempty" yaml:"threads" toml:"threads" validate:"gte=0"`
	ContextLength  int              `json:"context_length,omitempty" yaml:"context_length" toml:"context_length" validate:"gte=0"`
	GPULayers      int              `json:"gpu_layers,omitempty" yaml:"gpu_layers" toml:"gpu_layers"`
	BatchSize      int              `json:"batch_size,omitempty" yaml:"batch_size" toml:"batch_size" validate:"gte=0"`
	FlashAttention bool             `json:"flash_attention,omitempty" yaml:"flash_attention" toml:"flash_attention"`
	KVCache        KVCacheSettings  `json:"kv_cache" yaml:"kv_cache" toml:"kv_cache"`
	Defaults       GenerationParams `json:"defaults" yaml:"defaults" toml:"defaults"`
}

// Descriptor identifies a servable model and how to build a client for it.
// Descriptors are immutable; the whole set is replaced on update.
type Descriptor struct {
	ID          string
	Identifier  string
	DisplayName string
	Kind        Kind
	Provider    string
	Settings    ModelSettings
	Tags        []string
	// Optional metadata; zero means unknown.
	Context   int
	Quant     string
	SizeBytes int64
}

// HasTag reports whether the descriptor carries tag (case-insensitive).
func (d Descriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// IsLocal reports whether the descriptor runs on this host.
func (d Descriptor) IsLocal() bool {
	_, ok := d.Kind.(LocalKind)
	return ok
}

// Dialect is the wire protocol spoken by a remote backend.
type Dialect string

const (
	DialectOllama   Dialect = "ollama"
	DialectLMStudio Dialect = "lmstudio"
	DialectOpenAI   Dialect = "openai"
)

// Backend describes a remote chat endpoint.
type Backend struct {
	ID          string  `json:"id" yaml:"id" toml:"id" validate:"required"`
	DisplayName string  `json:"display_name,omitempty" yaml:"display_name" toml:"display_name"`
	ChatURL     string  `json:"chat_url" yaml:"chat_url" toml:"chat_url" validate:"required,url"`
	AuthHeader  string  `json:"auth_header,omitempty" yaml:"auth_header" toml:"auth_header"`
	AuthValue   string  `json:"auth_value,omitempty" yaml:"auth_value" toml:"auth_value"`
	Dialect     Dialect `json:"dialect" yaml:"dialect" toml:"dialect" validate:"required,oneof=ollama lmstudio openai"`
	// Zero means the adapter default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds" toml:"timeout_seconds" validate:"gte=0"`
}

// Timeout returns the per-request deadline for this backend, or def.
func (b Backend) Timeout(def time.Duration) time.Duration {
	if b.TimeoutSeconds <= 0 {
		return def
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role" example:"user"`
	Content string `json:"content" example:"Hello"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage contains token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" example:"12"`
	CompletionTokens int `json:"completion_tokens" example:"34"`
	TotalTokens      int `json:"total_tokens" example:"46"`
}

// Health of a catalog entry as last observed.
type Health string

const (
	HealthOK       Health = "ok"
	HealthDegraded Health = "degraded"
	HealthError    Health = "error"
)

// CatalogEntry is the model-management view of whether a model is offered
// to peers.
type CatalogEntry struct {
	ModelID     string    `json:"model_id"`
	DisplayName string    `json:"display_name"`
	Exposed     bool      `json:"exposed"`
	Health      Health    `json:"health"`
	LastChecked time.Time `json:"last_checked"`
}

// Finish reasons reported by the relay.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishCancelled = "cancelled"
)
