package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"emotiond/internal/auth"
	"emotiond/internal/common/fsutil"
	"emotiond/internal/config"
	"emotiond/internal/facedetect"
	"emotiond/internal/httpapi"
	"emotiond/internal/inference"
	"emotiond/internal/registry"
	"emotiond/internal/stream"
	"emotiond/internal/tracker"
)

func runServe(cmd *cobra.Command, fv *flagValues, lookup func(string) (string, bool)) error {
	cfg, err := resolveConfig(cmd, fv, lookup)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, log)
}

// app is the wired service; serve and the e2e tests share it.
type app struct {
	handler  http.Handler
	registry *stream.Registry
	loader   *inference.Loader
	detector *facedetect.Detector
}

func (a *app) Close() {
	_ = a.loader.Close()
	_ = a.detector.Close()
}

// build wires catalog, detector, inference loader and session registry.
// Missing models or cascades degrade the service instead of failing it:
// /readyz stays at loading and frames yield no faces.
func build(baseCtx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	log.Info().Bool("gocv", facedetect.Built()).Bool("onnx", inference.ONNXBuilt()).Msg("compiled backends")
	cat, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		log.Warn().Err(err).Str("models_dir", cfg.ModelsDir).Msg("model scan failed")
		cat = &registry.Catalog{}
	}

	cascadePath, err := fsutil.Resolve(cfg.CascadePath)
	if err != nil {
		return nil, err
	}
	if cascadePath == "" {
		if c, ok := cat.Cascade(""); ok {
			cascadePath = c.Path
		}
	}
	var cascade facedetect.Cascade
	switch {
	case cascadePath == "":
		log.Warn().Msg("no haar cascade configured; frames will report no faces")
	case !fsutil.PathExists(cascadePath):
		log.Warn().Str("cascade", cascadePath).Msg("haar cascade not found; frames will report no faces")
	default:
		cascade, err = facedetect.LoadCascade(cascadePath)
		if err != nil {
			log.Warn().Err(err).Str("cascade", cascadePath).Msg("haar cascade unavailable; frames will report no faces")
			cascade = nil
		}
	}
	detector := facedetect.NewDetector(cascade, log)

	var open inference.Opener
	switch cfg.Backend {
	case config.BackendRemote:
		open = inference.OpenRemote(inference.RemoteOptions{URL: cfg.RemoteURL})
	default:
		if !inference.ONNXBuilt() {
			log.Warn().Msg("binary built without the onnx tag; the classifier will not load")
		}
		var modelPath string
		if m, ok := cat.Model(cfg.ModelID); ok {
			modelPath = m.Path
		} else {
			log.Warn().Str("model_id", cfg.ModelID).Str("models_dir", cat.Dir).Msg("classifier model not found")
		}
		lib, err := fsutil.Resolve(cfg.ONNXLibrary)
		if err != nil {
			return nil, err
		}
		open = inference.OpenONNX(inference.ONNXOptions{ModelPath: modelPath, SharedLibrary: lib, Threads: cfg.ONNXThreads})
	}
	loader := inference.NewLoader(open, log)

	var verifierOpts []auth.JWTOption
	if cfg.JWTIssuer != "" {
		verifierOpts = append(verifierOpts, auth.WithIssuer(cfg.JWTIssuer))
	}
	reg, err := stream.NewRegistry(stream.RegistryConfig{
		MaxConnections: cfg.MaxConnections,
		Verifier:       auth.NewJWTVerifier(cfg.JWTSecret, verifierOpts...),
		NewProcessor:   stream.NewPipelineFactory(detector, loader, tracker.DefaultMaxDistance),
		Defaults:       cfg.Detection,
		Metrics:        httpapi.PromMetrics{},
		Publisher:      stream.LogPublisher{Log: log.With().Str("component", "events").Logger()},
		Logger:         log,
		BaseContext:    baseCtx,
	})
	if err != nil {
		_ = detector.Close()
		return nil, err
	}

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetDefaultLogLevel(httpLogLevel(cfg.LogLevel))
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins, []string{"GET", "OPTIONS"}, []string{"Authorization", "Content-Type"})
	}

	svc := &httpapi.Realtime{Registry: reg, Handle: loader, Models: cat}
	return &app{
		handler:  httpapi.NewMux(svc),
		registry: reg,
		loader:   loader,
		detector: detector,
	}, nil
}

// httpLogLevel maps a zerolog level name onto the HTTP layer's coarser one.
func httpLogLevel(level string) string {
	switch level {
	case "debug", "trace":
		return "debug"
	case "warn", "error", "fatal", "panic":
		return "error"
	case "disabled":
		return "off"
	default:
		return "info"
	}
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	// Sessions' in-flight cycles run on baseCtx, which ends only after the
	// HTTP server has drained.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	a, err := build(baseCtx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	// Cancelling ctx closes open websockets; hijacked connections are not
	// drained by srv.Shutdown.
	httpapi.SetBaseContext(ctx)

	// Warm the shared handle so /readyz flips without waiting for a client.
	go func() {
		if _, err := a.loader.Get(baseCtx); err != nil {
			log.Warn().Err(err).Msg("inference handle not loaded")
		}
	}()

	srv := &http.Server{Addr: cfg.Addr, Handler: a.handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("backend", cfg.Backend).Int("max_connections", a.registry.MaxConnections()).Msg("emotiond listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	for _, s := range a.registry.Sessions() {
		a.registry.Disconnect(s.SessionID)
	}
	return nil
}
