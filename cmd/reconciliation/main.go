// Command reconciliation runs component G: periodic custody-vs-claims
// checks, freeze state control, and governance-audited overrides.
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
	"github.com/certen/dgc-protocol/pkg/reconciliation"
	"github.com/certen/dgc-protocol/pkg/trust"
)

func main() {
	cfg := config.LoadReconciliation()
	logger := log.New(log.Writer(), "[reconciliation] ", log.LstdFlags)

	store, err := reconciliation.NewStore(cfg.DBPath, logger)
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

	service := reconciliation.NewService(store,
		certClient, cfg.CertificateServiceURL,
		riskClient, cfg.RiskStreamURL,
		cfg.CustodyTotalGram, cfg.MismatchThresholdGram,
	)

	gate := trust.NewServiceGate(cfg.ServiceAuthToken)
	unfreezeRoles := trust.ParseRoleSet(cfg.UnfreezeAllowedRoles)
	handlers := reconciliation.NewHandlers(service, gate, unfreezeRoles, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: metrics.Handler("reconciliation", mux),
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
