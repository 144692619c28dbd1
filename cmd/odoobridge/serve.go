package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xelth-com/odoobridge/internal/broker"
	"github.com/xelth-com/odoobridge/internal/handlers"
	"github.com/xelth-com/odoobridge/internal/services/scheduler"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API, the scheduler and the broker consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	sched := scheduler.NewSyncService(a.orch, a.engine, a.metrics, scheduler.Config{
		FlushInterval:     a.cfg.Sync.FlushInterval,
		Strict:            a.cfg.Sync.Strict,
		ReconcileInterval: a.cfg.Sync.ReconcileInterval,
		ReconcileLookback: a.cfg.Sync.ReconcileLookback,
	}, log)
	sched.Start(ctx)
	defer sched.Stop()

	if a.cfg.RabbitMQ.URL != "" {
		consumer, err := broker.NewConsumer(a.cfg.RabbitMQ.URL, a.cfg.RabbitMQ.Queue, a.orch, a.metrics, log)
		if err != nil {
			return err
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Listen(ctx); err != nil {
				log.Errorf("❌ Broker consumer stopped: %v", err)
			}
		}()
	} else {
		log.Info("Broker intake disabled: RABBITMQ_URL not configured")
	}

	router := handlers.NewRouter(handlers.Deps{
		Sync:       a.orch,
		Reconciler: a.engine,
		Mappings:   a.store,
		DB:         a.db.DB,
		Metrics:    a.metrics,
		JWTSecret:  a.cfg.Server.JWTSecret,
		Log:        log,
	})

	server := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("🚀 Server starting on port %s", a.cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Warn("⚠️ Shutdown signal received, shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
	}

	log.Info("✅ Shutdown complete")
	return nil
}
