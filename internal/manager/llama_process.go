package manager

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	readyTimeout  = 30 * time.Second
	readyPoll     = 100 * time.Millisecond
	stopGrace     = 2 * time.Second
	stderrTailMax = 4096
)

// llamaProcess is one spawned llama-server.
type llamaProcess struct {
	cmd     *exec.Cmd
	baseURL string
	log     zerolog.Logger
	exited  chan struct{}
	stopped sync.Once
}

// tailBuffer keeps the last stderrTailMax bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - stderrTailMax; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// llamaServerArgs renders the command line for lp.
func llamaServerArgs(cfg LlamaConfig, lp LoadParams, host string, port int) []string {
	args := []string{
		"-m", lp.ModelPath,
		"--host", host,
		"--port", strconv.Itoa(port),
	}
	if lp.ContextLength > 0 {
		args = append(args, "-c", strconv.Itoa(lp.ContextLength))
	}
	if lp.GPULayers != 0 {
		args = append(args, "-ngl", strconv.Itoa(lp.GPULayers))
	}
	if lp.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(lp.Threads))
	}
	if lp.BatchSize > 0 {
		args = append(args, "-b", strconv.Itoa(lp.BatchSize))
	}
	if lp.FlashAttention {
		args = append(args, "--flash-attn")
	}
	if lp.KVCache.Enabled {
		if lp.KVCache.TypeK != "" {
			args = append(args, "--cache-type-k", strings.ToLower(lp.KVCache.TypeK))
		}
		if lp.KVCache.TypeV != "" {
			args = append(args, "--cache-type-v", strings.ToLower(lp.KVCache.TypeV))
		}
	}
	if lp.ProjectorPath != "" {
		args = append(args, "--mmproj", lp.ProjectorPath)
	}
	if lp.Embedding {
		args = append(args, "--embeddings")
	}
	return append(args, cfg.ExtraArgs...)
}

// startLlamaProcess spawns llama-server for lp and waits until it answers
// /v1/models. It fails early if the process exits before becoming ready.
func startLlamaProcess(ctx context.Context, bin string, cfg LlamaConfig, lp LoadParams, log zerolog.Logger) (*llamaProcess, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := pickFreePort(host)
	if err != nil {
		return nil, err
	}
	baseURL := fmt.Sprintf("http://%s:%d", host, port)

	cmd := exec.Command(bin, llamaServerArgs(cfg, lp, host, port)...)
	// Capture stderr for diagnostics (tail is included on failure)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, ErrDependencyUnavailable(fmt.Sprintf("start llama-server: %v", err))
	}
	p := &llamaProcess{
		cmd:     cmd,
		baseURL: baseURL,
		log:     log.With().Int("pid", cmd.Process.Pid).Str("url", baseURL).Logger(),
		exited:  make(chan struct{}),
	}
	p.log.Info().Str("model", lp.ModelPath).Msg("llama-server started")

	// Early-exit watcher: surface exit before readiness
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(p.exited)
	}()

	httpClient := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(readyTimeout)
	for {
		if time.Now().After(deadline) {
			_ = p.Stop()
			return nil, fmt.Errorf("llama-server not ready in time: %s", baseURL)
		}
		select {
		case <-p.exited:
			p.log.Warn().Err(waitErr).Msg("llama-server exited before ready")
			return nil, fmt.Errorf("llama-server exited early: %v; stderr tail: %s", waitErr, stderr.String())
		case <-ctx.Done():
			_ = p.Stop()
			return nil, ctx.Err()
		default:
		}
		if healthy(ctx, httpClient, baseURL) {
			p.log.Info().Msg("llama-server ready")
			return p, nil
		}
		time.Sleep(readyPoll)
	}
}

// healthy checks if the llama-server at baseURL responds OK to /v1/models.
func healthy(ctx context.Context, c *http.Client, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := c.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Alive reports whether the process has not exited.
func (p *llamaProcess) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Stop sends SIGTERM, then kills the process if it is still up after the grace period.
func (p *llamaProcess) Stop() error {
	p.stopped.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.exited:
		case <-time.After(stopGrace):
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
		p.log.Info().Msg("llama-server stopped")
	})
	return nil
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// discoverLlamaBin looks for llama-server in common install locations and PATH.
func discoverLlamaBin() string {
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, "apps", "llama.cpp", "build", "bin", "llama-server"),
		"/usr/local/bin/llama-server",
		"/opt/homebrew/bin/llama-server",
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	if lp, err := exec.LookPath("llama-server"); err == nil {
		return lp
	}
	return ""
}
