package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-relay/internal/platform/config"
	"hls-relay/internal/platform/logger"
	"hls-relay/internal/platform/metrics"
	"hls-relay/internal/platform/origin"
	"hls-relay/internal/platform/upstream"
	"hls-relay/internal/relay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP server",
		RunE:  runServe,
	}
}

// runServe is shared by serve and the bare root command.
func runServe(cmd *cobra.Command, args []string) error {
	return serve(config.FromEnv())
}

func serve(cfg config.Settings) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	reg, err := relay.LoadRegistry(cfg.ChannelsFile)
	if err != nil {
		return err
	}

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		rand.Read(secret)
		log.Warn("TOKEN_SECRET not set, using a random secret; tokens will not survive a restart")
	}
	codec, err := relay.NewCodec(secret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	policy := relay.ParseReplayPolicy(cfg.ReplayPolicy)
	if string(policy) != cfg.ReplayPolicy {
		log.Warn("unknown REPLAY_POLICY, using single", "value", cfg.ReplayPolicy)
	}

	client := upstream.New(upstream.Options{
		UserAgent:    cfg.DefaultUserAgent,
		MaxRedirects: cfg.MaxRedirects,
	})
	for _, key := range reg.Keys() {
		ch, _ := reg.Lookup(key)
		client.SetRateLimit(key, ch.MaxRPS)
	}

	guard := relay.NewReplayGuard()
	met := metrics.New()

	rw := relay.NewRewriter(reg, codec, client, relay.RewriterConfig{
		Policy:        policy,
		PublicBaseURL: cfg.PublicBaseURL,
		Timeout:       cfg.ManifestTimeout,
		CacheTTL:      cfg.PlaylistCacheTTL,
	}, log)
	sr := relay.NewSegmentRelay(reg, codec, guard, client, rw, relay.SegmentConfig{
		Policy:        policy,
		Timeout:       cfg.SegmentTimeout,
		RewriteNested: cfg.RewriteNested,
	}, log)
	h := relay.NewHandler(reg, codec, rw, sr, relay.HandlerConfig{
		TrustForwardedFor: cfg.TrustForwardedFor,
		BindClientIP:      cfg.BindClientIP,
		GzipPlaylists:     cfg.GzipPlaylists,
	}, log, met)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Use(origin.CORS(cfg.AllowedOrigin))
	r.Use(origin.Guard(cfg.AllowedOrigin))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetReplayRecords(guard.Len()) }).ServeHTTP(w, r)
	})
	h.Mount(r)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go guard.Run(ctx, cfg.SweepInterval, log)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("server starting",
		slog.String("port", cfg.Port),
		slog.Int("channels", reg.Len()),
		slog.String("replay_policy", string(policy)),
		slog.Duration("token_ttl", cfg.TokenTTL),
		slog.Bool("bind_client_ip", cfg.BindClientIP),
		slog.String("log_level", cfg.LogLevel),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		log.Error("server error", "error", err)
		return err
	}

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped")
	return nil
}
