// Package main provides walletcored - a thin example binary wiring the
// Account Manager, storage, and actor server together into one process.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klingon-exchange/tangle-wallet-core/internal/accountsync"
	"github.com/klingon-exchange/tangle-wallet-core/internal/actor"
	"github.com/klingon-exchange/tangle-wallet-core/internal/manager"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
	"github.com/klingon-exchange/tangle-wallet-core/internal/poller"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
	"github.com/klingon-exchange/tangle-wallet-core/internal/storage"
	"github.com/klingon-exchange/tangle-wallet-core/internal/walletconfig"
	"github.com/klingon-exchange/tangle-wallet-core/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.tangle-wallet-core", "Data directory")
		apiAddr     = flag.String("api", "127.0.0.1:9090", "Actor websocket API address")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		coinType    = flag.Uint("coin-type", 4218, "BIP44 coin type")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("walletcored %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := walletconfig.Load(*dataDir)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(&storage.Config{DataDir: *dataDir})
	if err != nil {
		log.Fatal("failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("storage initialized", "dir", *dataDir)

	// The node client and signer are external collaborators this core
	// drives through narrow interfaces (internal/nodeclient,
	// internal/signer); wiring a real Tangle node and hardware/software
	// signer implementation is deployment-specific and out of scope here,
	// so this example process runs against the in-memory fakes.
	client := nodeclient.NewFake()
	provider := signer.NewFake()

	mgr := manager.New(client, provider, store, uint32(*coinType))
	if err := mgr.LoadAll(ctx); err != nil {
		log.Fatal("failed to load accounts", "error", err)
	}
	log.Info("accounts loaded", "count", len(mgr.Accounts()))

	p := poller.New(client, mgr, mgr.Engine(), store, poller.Options{
		GapLimit:                     cfg.GapLimit.Size,
		ConsolidationEnabled:         cfg.AccountOptions.ConsolidationEnabled,
		OutputConsolidationThreshold: cfg.AccountOptions.OutputConsolidationThreshold,
	})
	startPolling(ctx, log, p)

	a := actor.New(mgr, client, provider, accountsyncPersister(store), p)
	server := actor.NewServer(a)

	httpServer := &http.Server{Addr: *apiAddr, Handler: server}
	go func() {
		log.Info("actor server listening", "addr", *apiAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("actor server stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("actor server shutdown error", "error", err)
	}
}

// startPolling runs one poller tick every interval until ctx is canceled.
func startPolling(ctx context.Context, log *logging.Logger, p *poller.Poller) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.Tick(ctx); err != nil {
					log.Error("poller tick failed", "error", err)
				}
			}
		}
	}()
}

// accountsyncPersister narrows *storage.Storage to accountsync.Persister
// for the actor's one-shot sync fallback path.
func accountsyncPersister(s *storage.Storage) accountsync.Persister {
	return s
}
