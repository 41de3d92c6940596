package types

// GenerationParams are sampling overrides. Nil fields are unset and fall
// back to whatever sits underneath them in a Merge.
type GenerationParams struct {
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature" toml:"temperature"`
	TopP             *float64 `json:"top_p,omitempty" yaml:"top_p" toml:"top_p"`
	TopK             *int     `json:"top_k,omitempty" yaml:"top_k" toml:"top_k"`
	MaxTokens        *int     `json:"max_tokens,omitempty" yaml:"max_tokens" toml:"max_tokens"`
	Stop             []string `json:"stop,omitempty" yaml:"stop" toml:"stop"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty" toml:"presence_penalty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty" toml:"frequency_penalty"`
	Seed             *int64   `json:"seed,omitempty" yaml:"seed" toml:"seed"`
}

// Merge returns p with every set field of over applied on top.
// A non-empty over.Stop replaces p.Stop.
func (p GenerationParams) Merge(over GenerationParams) GenerationParams {
	out := p
	if over.Temperature != nil {
		out.Temperature = over.Temperature
	}
	if over.TopP != nil {
		out.TopP = over.TopP
	}
	if over.TopK != nil {
		out.TopK = over.TopK
	}
	if over.MaxTokens != nil {
		out.MaxTokens = over.MaxTokens
	}
	if len(over.Stop) > 0 {
		out.Stop = append([]string(nil), over.Stop...)
	} else if len(p.Stop) > 0 {
		out.Stop = append([]string(nil), p.Stop...)
	}
	if over.PresencePenalty != nil {
		out.PresencePenalty = over.PresencePenalty
	}
	if over.FrequencyPenalty != nil {
		out.FrequencyPenalty = over.FrequencyPenalty
	}
	if over.Seed != nil {
		out.Seed = over.Seed
	}
	return out
}

// MaxTokensOr returns MaxTokens or def when unset.
func (p GenerationParams) MaxTokensOr(def int) int {
	if p.MaxTokens == nil {
		return def
	}
	return *p.MaxTokens
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
