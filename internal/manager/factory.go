package manager

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"relayd/pkg/types"
)

// llamaFactory builds gguf clients: in-process when compiled with the
// llama tag, otherwise a llama-server subprocess per model.
type llamaFactory struct {
	cfg LlamaConfig
	log zerolog.Logger
}

// NewLlamaFactory returns the default ClientFactory for gguf models.
func NewLlamaFactory(cfg LlamaConfig, log zerolog.Logger) ClientFactory {
	return &llamaFactory{cfg: cfg, log: log}
}

func (f *llamaFactory) NewClient(ctx context.Context, desc types.Descriptor, lp LoadParams) (Client, error) {
	if lp.Format != types.FormatGGUF {
		return nil, ErrUnsupportedFormat(string(lp.Format))
	}
	if llamaBuilt {
		return newInProcessClient(lp)
	}
	bin := f.cfg.Bin
	if bin == "" {
		bin = discoverLlamaBin()
	}
	if bin == "" {
		return nil, ErrDependencyUnavailable("llama support not built and llama-server not found")
	}
	// The loopback server owns the projector.
	lp.ProjectorPath = ""
	proc, err := startLlamaProcess(ctx, bin, f.cfg, lp, f.log.With().Str("model", desc.ID).Logger())
	if err != nil {
		return nil, err
	}
	return newLlamaServerClient(proc, filepath.Base(lp.ModelPath)), nil
}
