// Command cert-authority runs component D: the certificate authority
// that canonicalizes, signs, persists, and lifecycle-manages gold
// certificates.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/certen/dgc-protocol/pkg/certauthority"
	"github.com/certen/dgc-protocol/pkg/config"
	"github.com/certen/dgc-protocol/pkg/httpx"
	"github.com/certen/dgc-protocol/pkg/metrics"
	"github.com/certen/dgc-protocol/pkg/trust"
)

func main() {
	cfg := config.LoadCertAuthority()
	logger := log.New(log.Writer(), "[cert-authority] ", log.LstdFlags)

	if cfg.IssuerPrivateKeyHex == "" {
		logger.Fatal("ISSUER_PRIVATE_KEY_HEX is required")
	}

	store, err := certauthority.NewStore(cfg.DBPath, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var ledgerClient *httpx.Client
	if cfg.LedgerAdapterURL != "" {
		ledgerClient = httpx.NewClient(cfg.ServiceAuthToken)
	}

	service, err := certauthority.NewService(store, cfg.IssuerPrivateKeyHex, ledgerClient, cfg.LedgerAdapterURL)
	if err != nil {
		logger.Fatalf("construct service: %v", err)
	}

	gate := trust.NewServiceGate(cfg.ServiceAuthToken)
	handlers := certauthority.NewHandlers(service, gate, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: metrics.Handler("cert-authority", mux),
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
