package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr" validate:"required"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Optional yaml/json/toml file listing remote backends and explicit descriptors.
	Manifest  string `json:"manifest" yaml:"manifest" toml:"manifest"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level" validate:"omitempty,oneof=trace debug info warn error off"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format" validate:"omitempty,oneof=console json"`
	// Model ids loaded with manual origin at startup.
	Preload []string `json:"preload" yaml:"preload" toml:"preload"`

	Serving  Serving  `json:"serving" yaml:"serving" toml:"serving"`
	Llama    Llama    `json:"llama" yaml:"llama" toml:"llama"`
	Queue    Queue    `json:"queue" yaml:"queue" toml:"queue"`
	HTTP     HTTP     `json:"http" yaml:"http" toml:"http"`
	Sessions Sessions `json:"sessions" yaml:"sessions" toml:"sessions"`
}

// Serving is the loading/eviction policy of the client pool.
type Serving struct {
	JustInTimeLoading    bool `json:"just_in_time_loading" yaml:"just_in_time_loading" toml:"just_in_time_loading"`
	AutoUnloadJIT        bool `json:"auto_unload_jit" yaml:"auto_unload_jit" toml:"auto_unload_jit"`
	IdleTTLSeconds       int  `json:"idle_ttl_seconds" yaml:"idle_ttl_seconds" toml:"idle_ttl_seconds" validate:"gte=0"`
	OnlyKeepLastJITModel bool `json:"only_keep_last_jit_model" yaml:"only_keep_last_jit_model" toml:"only_keep_last_jit_model"`
}

// IdleTTL returns IdleTTLSeconds as a duration.
func (s Serving) IdleTTL() time.Duration { return time.Duration(s.IdleTTLSeconds) * time.Second }

// Llama configures the llama.cpp runtimes (subprocess clients and loopback server).
type Llama struct {
	Bin           string   `json:"bin" yaml:"bin" toml:"bin"`
	Host          string   `json:"host" yaml:"host" toml:"host"`
	Threads       int      `json:"threads" yaml:"threads" toml:"threads" validate:"gte=0"`
	ContextLength int      `json:"context_length" yaml:"context_length" toml:"context_length" validate:"gte=0"`
	GPULayers     int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	ExtraArgs     []string `json:"extra_args" yaml:"extra_args" toml:"extra_args"`
}

// Queue bounds per-model generation admission.
type Queue struct {
	MaxQueueDepth  int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth" validate:"gte=0"`
	MaxWaitSeconds int `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds" validate:"gte=0"`
}

type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

type HTTP struct {
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gte=0"`
	// Requests per minute per client IP; 0 disables limiting.
	RateLimitPerMinute int  `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute" toml:"rate_limit_per_minute" validate:"gte=0"`
	CORS               CORS `json:"cors" yaml:"cors" toml:"cors"`
}

type Sessions struct {
	Capacity int `json:"capacity" yaml:"capacity" toml:"capacity" validate:"gte=0"`
}

// Default returns the configuration used when no file or flag says otherwise.
func Default() Config {
	return Config{
		Addr:      ":8080",
		ModelsDir: "~/models/llm",
		LogLevel:  "info",
		LogFormat: "console",
		Serving: Serving{
			JustInTimeLoading: true,
			AutoUnloadJIT:     true,
			IdleTTLSeconds:    600,
		},
		Llama:    Llama{Host: "127.0.0.1"},
		Queue:    Queue{MaxQueueDepth: 32, MaxWaitSeconds: 30},
		HTTP:     HTTP{MaxBodyBytes: 1 << 20},
		Sessions: Sessions{Capacity: 64},
	}
}

// Decode reads path into v based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Decode(path string, v any) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	return nil
}

// Load reads a configuration file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := Decode(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyEnv overlays RELAYD_* environment variables. Malformed numeric or
// boolean values are reported and leave the field untouched.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, key)
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, key)
				return
			}
			*dst = n
		}
	}
	str("RELAYD_ADDR", &c.Addr)
	str("RELAYD_MODELS_DIR", &c.ModelsDir)
	str("RELAYD_MANIFEST", &c.Manifest)
	str("RELAYD_LOG_LEVEL", &c.LogLevel)
	str("RELAYD_LLAMA_BIN", &c.Llama.Bin)
	boolean("RELAYD_JIT", &c.Serving.JustInTimeLoading)
	boolean("RELAYD_AUTO_UNLOAD_JIT", &c.Serving.AutoUnloadJIT)
	boolean("RELAYD_ONLY_KEEP_LAST_JIT", &c.Serving.OnlyKeepLastJITModel)
	integer("RELAYD_IDLE_TTL_SECONDS", &c.Serving.IdleTTLSeconds)
	integer("RELAYD_RATE_LIMIT_PER_MINUTE", &c.HTTP.RateLimitPerMinute)
	if len(errs) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(errs, ", "))
	}
	return nil
}
