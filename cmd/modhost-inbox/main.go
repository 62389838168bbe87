package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cordum/modhost/core/infra/buildinfo"
	"github.com/cordum/modhost/core/infra/config"
	"github.com/cordum/modhost/core/infra/logging"
	infraMetrics "github.com/cordum/modhost/core/infra/metrics"
	"github.com/cordum/modhost/core/modules/host"
	"github.com/cordum/modhost/core/modules/inbox"
)

func main() {
	buildinfo.Log("modhost-inbox")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	h, err := host.Open(cfg, host.WithMetrics(infraMetrics.NewProm("modhost")))
	if err != nil {
		log.Fatalf("failed to open module host: %v", err)
	}
	defer h.Close()

	srv := newMetricsServer(cfg.MetricsAddr)
	go func() {
		logging.Info("modhost-inbox", "metrics listening", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("modhost-inbox", "metrics server error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := inbox.New(inbox.Config{Dir: cfg.InboxDir}, h.Service)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("modhost-inbox", "watcher stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logging.Info("modhost-inbox", "stopped")
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", infraMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
