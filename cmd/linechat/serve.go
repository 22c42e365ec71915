package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"linechat/internal/app/chat"
	"linechat/internal/app/db"
	"linechat/internal/app/notify"
	"linechat/internal/app/store"
	"linechat/internal/configs"
	"linechat/internal/handler"
	"linechat/internal/pkg/auth"
	"linechat/internal/pkg/limiter"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat listener and the ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize global logger
	if err := logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel); err != nil {
		return err
	}
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("chat_addr", cfg.ChatAddr).
		Int("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreDriver).
		Str("notifier", cfg.Notifier).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Configuration loaded successfully")

	if cfg.PasswordHashing == auth.PolicyPlaintext {
		logx.Warn("Passwords are stored and compared in plaintext. Set PASSWORD_HASHING=bcrypt for new deployments.")
	}

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logx.Error(err, "Failed to close store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mx := metrics.New(reg)

	notifier, err := notify.New(cfg.Notifier, notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(notifier, notify.DispatcherConfig{
		Rate:      cfg.NotifyRate,
		Burst:     cfg.NotifyBurst,
		QueueSize: cfg.NotifyQueueSize,
		OnResult: func(flow string, err error) {
			outcome := "sent"
			if err != nil {
				outcome = "failed"
			}
			mx.CodesDelivered.WithLabelValues(flow, outcome).Inc()
		},
	})
	defer dispatcher.Close()

	var connectLimiter *limiter.IPRateLimiter
	if cfg.ConnectRate > 0 {
		connectLimiter = limiter.NewIPRateLimiter(rate.Limit(cfg.ConnectRate), cfg.ConnectBurst)
		defer connectLimiter.Close()
	}

	// Initialize Chat Manager
	manager := chat.NewManager(cfg, st, dispatcher, chat.WithMetrics(mx))

	listenErr := make(chan error, 1)
	listener := chat.NewListener(cfg.ChatAddr, manager, cfg.MaxLineBytes, connectLimiter)
	go func() {
		listenErr <- listener.ListenAndServe(ctx)
	}()

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Manager:        manager,
		Config:         cfg,
		Gatherer:       reg,
		ConnectLimiter: connectLimiter,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Ops server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error(err, "Ops server failed")
			stop()
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logx.Info("Received shutdown signal. Starting graceful shutdown...")
	case runErr = <-listenErr:
		if runErr != nil {
			logx.Error(runErr, "Chat listener failed")
		}
		stop()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	// WebSocket sessions are hijacked, so the manager closes them rather than http.Server.
	manager.Shutdown(shutdownTimeout)

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Ops server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
	return runErr
}

// openStore connects the configured persistence backend.
func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	policy, err := auth.NewPasswordPolicy(cfg.PasswordHashing)
	if err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case configs.StoreDriverBadger:
		st, err := store.OpenBadger(store.BadgerOptions{Path: cfg.BadgerPath}, policy)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		logx.Info("Badger store opened.", "path", cfg.BadgerPath)
		return st, nil

	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		logx.Info("PostgreSQL store connected.")
		return store.NewPostgres(pool, policy), nil
	}
}
