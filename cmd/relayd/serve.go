package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"relayd/internal/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr, modelsDir, manifest string
		preload, corsOrigins     string
		timeoutSec               int64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			if modelsDir != "" {
				a.cfg.ModelsDir = modelsDir
			}
			if manifest != "" {
				a.cfg.Manifest = manifest
			}
			if ids := splitCSV(preload); len(ids) > 0 {
				a.cfg.Preload = ids
			}
			if origins := splitCSV(corsOrigins); len(origins) > 0 {
				a.cfg.HTTP.CORS.Enabled = true
				a.cfg.HTTP.CORS.Origins = origins
			}
			httpapi.SetGenerationTimeoutSeconds(timeoutSec)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080")
	f.StringVar(&modelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	f.StringVar(&manifest, "manifest", "", "Manifest declaring remote backends and extra models")
	f.StringVar(&preload, "preload", "", "Comma-separated model ids to load and pin at startup")
	f.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (enables CORS)")
	f.Int64Var(&timeoutSec, "generation-timeout", 0, "Per-request generation timeout in seconds (0 disables)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	log := a.log
	descs, backends, err := discover(a.cfg, log)
	if err != nil {
		return err
	}
	pool := newManager(a.cfg, descs, log)
	defer pool.Close()
	if rep := pool.SanityCheck(); !rep.OK() {
		log.Warn().Str("error", rep.Error).Msg("no llama.cpp runtime available; local models will fail to load")
	}
	engine := newEngine(pool, backends, a.cfg, log)
	configureHTTP(a.cfg, log)
	httpapi.SetBaseContext(ctx)

	if len(a.cfg.Preload) > 0 {
		pool.Preload(ctx, a.cfg.Preload)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := a.reload(os.LookupEnv, pool, engine); err != nil {
					log.Error().Err(err).Msg("reload failed")
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           httpapi.NewMux(engine),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.Addr).Int("models", len(descs)).Int("backends", len(backends)).Msg("relayd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("relayd stopped")
	return nil
}
