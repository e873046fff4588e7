// Command risk-engine runs component E: append-only event ingestion,
// per-target risk profile recomputation, and threshold-based alerting.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/certen/dgc-protocol/pkg/config"
	"github.com/certen/dgc-protocol/pkg/httpx"
	"github.com/certen/dgc-protocol/pkg/metrics"
	"github.com/certen/dgc-protocol/pkg/risk"
	"github.com/certen/dgc-protocol/pkg/trust"
)

func main() {
	cfg := config.LoadRiskEngine()
	logger := log.New(log.Writer(), "[risk-engine] ", log.LstdFlags)

	store, err := risk.NewStore(cfg.DBPath, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var webhookClient *httpx.Client
	if cfg.AlertWebhookURL != "" {
		webhookClient = httpx.NewClient(cfg.ServiceAuthToken)
	}

	service := risk.NewService(store, cfg.AlertThreshold, webhookClient, cfg.AlertWebhookURL)

	gate := trust.NewServiceGate(cfg.ServiceAuthToken)
	handlers := risk.NewHandlers(service, gate, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: metrics.Handler("risk-engine", mux),
	}

	go func() {
		logger.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
}
