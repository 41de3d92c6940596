package manager

import (
	"os"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	InProcessBuilt bool   `json:"in_process_built"`
	LlamaFound     bool   `json:"llama_found"`
	LlamaPath      string `json:"llama_path,omitempty"`
	Error          string `json:"error,omitempty"`
}

// OK reports whether at least one gguf runtime is usable.
func (r SanityReport) OK() bool { return r.InProcessBuilt || r.LlamaFound }

// SanityCheck validates that required external binaries are available.
// It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	return checkLlama(m.llama.Bin)
}

func checkLlama(configured string) SanityReport {
	r := SanityReport{InProcessBuilt: llamaBuilt}
	// Try configured path first, then discovery.
	bin := configured
	if bin == "" {
		bin = discoverLlamaBin()
	}
	if bin == "" {
		r.Error = "llama-server not found"
		return r
	}
	r.LlamaPath = bin
	fi, err := os.Stat(bin)
	switch {
	case err != nil:
		r.Error = err.Error()
	case fi.IsDir():
		r.Error = "llama path is a directory"
	default:
		r.LlamaFound = true
	}
	return r
}
