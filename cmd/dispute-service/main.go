// Command dispute-service runs component F: the OPEN/ASSIGNED/RESOLVED
// dispute state machine with governance-gated assign/resolve.
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
	"github.com/certen/dgc-protocol/pkg/dispute"
	"github.com/certen/dgc-protocol/pkg/metrics"
	"github.com/certen/dgc-protocol/pkg/trust"
)

func main() {
	cfg := config.LoadDispute()
	logger := log.New(log.Writer(), "[dispute-service] ", log.LstdFlags)

	store, err := dispute.NewStore(cfg.DBPath, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	service := dispute.NewService(store)

	gate := trust.NewServiceGate(cfg.ServiceAuthToken)
	assignRoles := trust.ParseRoleSet(cfg.AssignAllowedRoles)
	resolveRoles := trust.ParseRoleSet(cfg.ResolveAllowedRoles)
	handlers := dispute.NewHandlers(service, gate, assignRoles, resolveRoles, logger)

	mux := http.NewServeMux()
	handlers.Register(mux)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: metrics.Handler("dispute-service", mux),
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
