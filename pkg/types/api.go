package types

import (
	"encoding/json"
	"errors"
)

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StopList accepts either a single string or an array of strings.
type StopList []string

func (s *StopList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = StopList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("stop must be a string or an array of strings")
	}
	*s = many
	return nil
}

// ChatCompletionRequest is the OpenAI-compatible POST /v1/chat/completions body.
type ChatCompletionRequest struct {
	// example: qwen2.5-7b-instruct-q4_k_m.gguf
	Model    string    `json:"model" example:"qwen2.5-7b-instruct-q4_k_m.gguf"`
	Messages []Message `json:"messages"`
	// example: false
	Stream bool `json:"stream,omitempty" example:"false"`
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	// example: 256
	MaxTokens        *int     `json:"max_tokens,omitempty" example:"256"`
	Stop             StopList `json:"stop,omitempty" swaggertype:"array,string"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
	User             string   `json:"user,omitempty"`
}

// Params extracts the sampling overrides carried by the request.
func (r ChatCompletionRequest) Params() GenerationParams {
	return GenerationParams{
		Temperature:      r.Temperature,
		TopP:             r.TopP,
		TopK:             r.TopK,
		MaxTokens:        r.MaxTokens,
		Stop:             r.Stop,
		PresencePenalty:  r.PresencePenalty,
		FrequencyPenalty: r.FrequencyPenalty,
		Seed:             r.Seed,
	}
}

type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason" example:"stop"`
}

// ChatCompletionResponse is the non-streaming chat completion reply.
type ChatCompletionResponse struct {
	ID      string       `json:"id" example:"chatcmpl-01J9Z6"`
	Object  string       `json:"object" example:"chat.completion"`
	Created int64        `json:"created" example:"1700000000"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is one server-sent event of a streamed chat completion.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// CompletionRequest is the OpenAI-compatible POST /v1/completions body.
type CompletionRequest struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt" example:"Once upon a time"`
	Stream           bool     `json:"stream,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Stop             StopList `json:"stop,omitempty" swaggertype:"array,string"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
}

func (r CompletionRequest) Params() GenerationParams {
	return GenerationParams{
		Temperature:      r.Temperature,
		TopP:             r.TopP,
		TopK:             r.TopK,
		MaxTokens:        r.MaxTokens,
		Stop:             r.Stop,
		PresencePenalty:  r.PresencePenalty,
		FrequencyPenalty: r.FrequencyPenalty,
		Seed:             r.Seed,
	}
}

type CompletionChoice struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	FinishReason *string `json:"finish_reason"`
}

// CompletionResponse is used both for the final reply and for streamed chunks.
type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object" example:"text_completion"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

// ResponsesRequest is the POST /v1/responses body. A previous_response_id
// bound to the same model continues that conversation.
type ResponsesRequest struct {
	Model              string   `json:"model"`
	Input              string   `json:"input" example:"And what about tomorrow?"`
	Instructions       string   `json:"instructions,omitempty"`
	PreviousResponseID string   `json:"previous_response_id,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	TopP               *float64 `json:"top_p,omitempty"`
	MaxOutputTokens    *int     `json:"max_output_tokens,omitempty"`
}

func (r ResponsesRequest) Params() GenerationParams {
	return GenerationParams{Temperature: r.Temperature, TopP: r.TopP, MaxTokens: r.MaxOutputTokens}
}

type ResponseContent struct {
	Type string `json:"type" example:"output_text"`
	Text string `json:"text"`
}

type ResponseOutput struct {
	Type    string            `json:"type" example:"message"`
	Role    string            `json:"role" example:"assistant"`
	Content []ResponseContent `json:"content"`
}

// ResponsesResponse is the reply to POST /v1/responses.
type ResponsesResponse struct {
	ID           string           `json:"id" example:"resp_01J9Z6P3T1"`
	Object       string           `json:"object" example:"response"`
	CreatedAt    int64            `json:"created_at"`
	Model        string           `json:"model"`
	Status       string           `json:"status" example:"completed"`
	FinishReason string           `json:"finish_reason"`
	Output       []ResponseOutput `json:"output"`
	OutputText   string           `json:"output_text"`
	Usage        Usage            `json:"usage"`
}

type ModelCard struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the OpenAI GET /v1/models reply.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelCard `json:"data"`
}

// OllamaOptions mirrors the subset of Ollama's options object the relay honors.
type OllamaOptions struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	NumPredict       *int     `json:"num_predict,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

func (o OllamaOptions) Params() GenerationParams {
	return GenerationParams{
		Temperature:      o.Temperature,
		TopP:             o.TopP,
		TopK:             o.TopK,
		MaxTokens:        o.NumPredict,
		Stop:             o.Stop,
		PresencePenalty:  o.PresencePenalty,
		FrequencyPenalty: o.FrequencyPenalty,
		Seed:             o.Seed,
	}
}

// OllamaChatRequest is the POST /api/chat body. Stream defaults to true.
type OllamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   *bool         `json:"stream,omitempty"`
	Options  OllamaOptions `json:"options"`
}

type OllamaChatResponse struct {
	Model           string   `json:"model"`
	CreatedAt       string   `json:"created_at"`
	Message         *Message `json:"message,omitempty"`
	Done            bool     `json:"done"`
	DoneReason      string   `json:"done_reason,omitempty"`
	PromptEvalCount int      `json:"prompt_eval_count,omitempty"`
	EvalCount       int      `json:"eval_count,omitempty"`
	TotalDuration   int64    `json:"total_duration,omitempty"`
}

// OllamaGenerateRequest is the POST /api/generate body.
type OllamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  *bool         `json:"stream,omitempty"`
	Options OllamaOptions `json:"options"`
}

type OllamaGenerateResponse struct {
	Model           string `json:"model"`
	CreatedAt       string `json:"created_at"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
}

// EmbeddingInput accepts a single string or an array of strings.
type EmbeddingInput []string

func (in *EmbeddingInput) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*in = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*in = EmbeddingInput{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("input must be a string or an array of strings")
	}
	*in = many
	return nil
}

// EmbeddingRequest is the OpenAI-compatible POST /v1/embeddings body.
type EmbeddingRequest struct {
	// example: nomic-embed-text-v1.5.Q8_0.gguf
	Model string         `json:"model" example:"nomic-embed-text-v1.5.Q8_0.gguf"`
	Input EmbeddingInput `json:"input" swaggertype:"array,string"`
	// Only "float" is supported.
	EncodingFormat string `json:"encoding_format,omitempty"`
	User           string `json:"user,omitempty"`
}

type Embedding struct {
	Object    string    `json:"object" example:"embedding"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type EmbeddingResponse struct {
	Object string         `json:"object" example:"list"`
	Data   []Embedding    `json:"data"`
	Model  string         `json:"model"`
	Usage  EmbeddingUsage `json:"usage"`
}

// OllamaEmbedRequest is the POST /api/embed body.
type OllamaEmbedRequest struct {
	Model string         `json:"model"`
	Input EmbeddingInput `json:"input" swaggertype:"array,string"`
}

type OllamaEmbedResponse struct {
	Model           string      `json:"model"`
	Embeddings      [][]float32 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	TotalDuration   int64       `json:"total_duration,omitempty"`
}

type OllamaModelDetails struct {
	Format            string `json:"format"`
	QuantizationLevel string `json:"quantization_level,omitempty"`
}

type OllamaModel struct {
	Name    string             `json:"name"`
	Model   string             `json:"model"`
	Size    int64              `json:"size"`
	Details OllamaModelDetails `json:"details"`
}

// OllamaTags is the GET /api/tags reply.
type OllamaTags struct {
	Models []OllamaModel `json:"models"`
}

type LMStudioModel struct {
	ID                string `json:"id"`
	Object            string `json:"object"`
	Type              string `json:"type" example:"llm"`
	Publisher         string `json:"publisher,omitempty"`
	CompatibilityType string `json:"compatibility_type,omitempty" example:"gguf"`
	Quantization      string `json:"quantization,omitempty"`
	State             string `json:"state" example:"loaded"`
	MaxContextLength  int    `json:"max_context_length,omitempty"`
}

// LMStudioModelList is the GET /api/v0/models reply.
type LMStudioModelList struct {
	Object string          `json:"object"`
	Data   []LMStudioModel `json:"data"`
}

// LoadedModelStatus summarizes one pooled client for /status.
type LoadedModelStatus struct {
	// example: qwen2.5-7b-instruct-q4_k_m.gguf
	ModelID string `json:"model_id" example:"qwen2.5-7b-instruct-q4_k_m.gguf"`
	// example: false
	Pinned bool `json:"pinned" example:"false"`
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Whether an idle eviction timer is armed.
	// example: true
	TimerArmed bool `json:"timer_armed" example:"true"`
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
}

// PolicyStatus echoes the active loading policy.
type PolicyStatus struct {
	JustInTimeLoading    bool  `json:"just_in_time_loading"`
	AutoUnloadJIT        bool  `json:"auto_unload_jit"`
	IdleTTLSeconds       int64 `json:"idle_ttl_seconds" example:"600"`
	OnlyKeepLastJITModel bool  `json:"only_keep_last_jit_model"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Loaded          []LoadedModelStatus `json:"loaded"`
	Pinned          []string            `json:"pinned"`
	Policy          PolicyStatus        `json:"policy"`
	LoopbackRunning bool                `json:"loopback_running"`
	// example: 4
	Descriptors int `json:"descriptors" example:"4"`
	// example: 3
	Sessions int `json:"sessions" example:"3"`
	// example: 2
	ConnectedClients int `json:"connected_clients" example:"2"`
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ConnectedClient is a recently seen caller.
type ConnectedClient struct {
	Transport  string `json:"transport" example:"http"`
	Identifier string `json:"identifier,omitempty"`
	Name       string `json:"name,omitempty"`
	Model      string `json:"model,omitempty"`
	Platform   string `json:"platform,omitempty"`
	SSID       string `json:"ssid,omitempty"`
	Address    string `json:"address,omitempty"`
	LastSeen   int64  `json:"last_seen_unix"`
}

// ConnectedClientsResponse is the GET /v1/clients reply.
type ConnectedClientsResponse struct {
	Clients []ConnectedClient `json:"clients"`
}

// ModelActionResponse acknowledges a manual load or unload.
type ModelActionResponse struct {
	Model  string `json:"model"`
	Status string `json:"status" example:"loaded"`
}
