// Command ledger-adapter runs component C: the proof-anchor and
// event-timeline store, optionally forwarding lineage events to an
// EVM chain sink.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/certen/dgc-protocol/pkg/chainwriter"
	"github.com/certen/dgc-protocol/pkg/config"
	"github.com/certen/dgc-protocol/pkg/httpx"
	"github.com/certen/dgc-protocol/pkg/ledger"
	"github.com/certen/dgc-protocol/pkg/metrics"
	"github.com/certen/dgc-protocol/pkg/trust"
)

func main() {
	cfg := config.LoadLedgerAdapter()
	logger := log.New(log.Writer(), "[ledger-adapter] ", log.LstdFlags)

	var chain chainwriter.ChainWriter = chainwriter.Unconfigured{}
	if cfg.ChainRPCURL != "" {
		writer, err := chainwriter.NewEVMWriter(cfg.ChainRPCURL, cfg.ChainPrivateKey, cfg.DGCRegistryAddress, cfg.ChainID)
		if err != nil {
			logger.Fatalf("construct chain sink: %v", err)
		}
		chain = writer
	}

	var riskClient *httpx.Client
	if cfg.RiskStreamURL != "" {
		riskClient = httpx.NewClient(cfg.ServiceAuthToken)
	}

	store, err := ledger.NewStore(cfg.DBPath, chain, riskClient, cfg.RiskStreamURL, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	gate := trust.NewServiceGate(cfg.ServiceAuthToken)
	handlers := ledger.NewHandlers(store, gate, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: metrics.Handler("ledger-adapter", mux),
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
