//go:build !llama

package manager

// Compiled when the 'llama' build tag is NOT set, keeping default builds
// CGO-free. gguf models then run through a llama-server subprocess.

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = false

func newInProcessClient(LoadParams) (Client, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
