package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/divvyup/ledger/internal/api"
	"github.com/divvyup/ledger/internal/auth"
	"github.com/divvyup/ledger/internal/config"
	"github.com/divvyup/ledger/internal/ledger"
	"github.com/divvyup/ledger/internal/metrics"
	"github.com/divvyup/ledger/internal/middleware"
	"github.com/divvyup/ledger/internal/remote"
	"github.com/divvyup/ledger/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	ledgerMetrics := metrics.New(registry)

	// Forward the caller's session token to the store of record; fall back
	// to the configured service credential for unauthenticated flows like
	// the startup refresh.
	tokens := remote.TokenFunc(func(ctx context.Context) (string, error) {
		if token := middleware.GetToken(ctx); token != "" {
			return token, nil
		}
		return cfg.RemoteToken, nil
	})

	storeCfg := ledger.Config{
		Remote:           remote.NewClient(cfg.RemoteBaseURL, tokens, cfg.RequestTimeout, ledgerMetrics),
		Metrics:          ledgerMetrics,
		WarningThreshold: cfg.WarnThreshold,
	}
	if cfg.UploadURL != "" {
		storeCfg.Uploader = remote.NewUploader(cfg.UploadURL, tokens, cfg.RequestTimeout)
	}
	store := ledger.New(storeCfg)

	// Seed from the store of record; the API can still come up and sync
	// later if it is unreachable right now.
	refreshCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	if err := store.Refresh(refreshCtx); err != nil {
		slog.Warn("Initial sync with store of record failed", "error", err)
	} else {
		slog.Info("Ledger seeded", "groups", len(store.ListGroups()))
	}
	cancel()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration)

	router := chi.NewRouter()
	router.Use(middleware.Logging)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtManager))
		r.Mount("/", api.NewServer(store).Routes())
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down", "pending_mutations", store.PendingMutations())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
