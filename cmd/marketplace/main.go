// Command marketplace runs component H: the escrow engine coordinating
// listing state with the certificate authority, gated by reconciliation
// freeze state, opening disputes via the dispute orchestrator, and
// fanning audit events to the risk engine.
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
	"github.com/certen/dgc-protocol/pkg/marketplace"
	"github.com/certen/dgc-protocol/pkg/metrics"
	"github.com/certen/dgc-protocol/pkg/trust"
)

func main() {
	cfg := config.LoadMarketplace()
	logger := log.New(log.Writer(), "[marketplace] ", log.LstdFlags)

	store, err := marketplace.NewStore(cfg.DBPath, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var certClient *httpx.Client
	if cfg.CertificateServiceURL != "" {
		certClient = httpx.NewClient(cfg.ServiceAuthToken)
	}
	var riskClient *httpx.Client
	if cfg.RiskStreamURL != "" {
		riskClient = httpx.NewClient(cfg.ServiceAuthToken)
	}
	var reconClient *httpx.Client
	if cfg.ReconciliationServiceURL != "" {
		reconClient = httpx.NewClient(cfg.ServiceAuthToken)
	}
	var disputeClient *httpx.Client
	if cfg.DisputeServiceURL != "" {
		disputeClient = httpx.NewClient(cfg.ServiceAuthToken)
	}

	service := marketplace.NewService(store,
		certClient, cfg.CertificateServiceURL,
		riskClient, cfg.RiskStreamURL,
		reconClient, cfg.ReconciliationServiceURL,
		disputeClient, cfg.DisputeServiceURL,
	)

	gate := trust.NewServiceGate(cfg.ServiceAuthToken)
	handlers := marketplace.NewHandlers(service, gate, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: metrics.Handler("marketplace", mux),
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
