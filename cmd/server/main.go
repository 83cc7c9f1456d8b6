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

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/auth"
	"github.com/mmynk/equb/internal/config"
	"github.com/mmynk/equb/internal/contribution"
	"github.com/mmynk/equb/internal/health"
	"github.com/mmynk/equb/internal/lifecycle"
	"github.com/mmynk/equb/internal/metrics"
	"github.com/mmynk/equb/internal/middleware"
	"github.com/mmynk/equb/internal/payout"
	"github.com/mmynk/equb/internal/reconcile"
	"github.com/mmynk/equb/internal/service"
	"github.com/mmynk/equb/internal/storage/sqlite"
	"github.com/mmynk/equb/pkg/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("EQUB_CONFIG"))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.SlogLevel(), cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(cfg.DBPath, sqlite.WithTxTimeout(cfg.TxTimeout))
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Storage initialized", "database", cfg.DBPath, "tx_timeout", cfg.TxTimeout)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	status := health.NewStatus(m, logger)
	recorder := audit.NewRecorder(logger)
	manager := lifecycle.NewManager(store,
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(m),
		lifecycle.WithRecorder(recorder),
		lifecycle.WithDeferredAdvance(cfg.DeferRoundAdvance),
	)
	reconciler := reconcile.NewEngine(store, status, m, logger)

	// The first check runs before the listener opens.
	reconcile.StartupGate(ctx, reconciler, logger)

	if cfg.IntegritySchedule != "" {
		scheduler, err := reconcile.NewScheduler(reconciler, cfg.IntegritySchedule, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			scheduler.Stop(stopCtx)
		}()
	}

	svc := service.NewLedgerService(
		manager,
		contribution.NewLedger(store, recorder, m, logger),
		payout.NewEngine(store, manager, recorder, m, logger),
		reconciler,
		audit.NewFeed(store, logger),
		logger,
	)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	interceptors := connect.WithInterceptors(
		middleware.RequireActor(jwtManager),
		middleware.LoggingInterceptor(logger),
		middleware.WriteGuard(status, service.FinancialWriteProcedures...),
	)

	mux := http.NewServeMux()
	path, handler := svc.Handler(interceptors)
	mux.Handle(path, handler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if status.IsDegraded() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("degraded: " + status.Reason() + "\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Connect server starting", "address", cfg.ListenAddr, "service", service.ServiceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
