// Package main provides the wagerd daemon: the off-chain coordinator for
// two-player wagered matches settled on a Solana-compatible ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/klingon-exchange/wagerd/internal/config"
	"github.com/klingon-exchange/wagerd/internal/coordinator"
	"github.com/klingon-exchange/wagerd/internal/finalizer"
	"github.com/klingon-exchange/wagerd/internal/ledger"
	"github.com/klingon-exchange/wagerd/internal/rpcserver"
	"github.com/klingon-exchange/wagerd/internal/store"
	"github.com/klingon-exchange/wagerd/internal/watcher"
	"github.com/klingon-exchange/wagerd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Optional YAML config file overlay")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("wagerd %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(&logging.Config{Level: cfg.LogLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		log.Fatal("invalid PROGRAM_ID", "error", err)
	}
	authorityPubkey, err := solana.PublicKeyFromBase58(cfg.AuthorityPubkey)
	if err != nil {
		log.Fatal("invalid AUTHORITY_PUBKEY", "error", err)
	}
	authorityKeypair, err := loadKeypair(cfg.AuthorityKeypairPath)
	if err != nil {
		log.Fatal("failed to load authority keypair", "error", err)
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", "error", err)
	}
	defer st.Close()

	ledgerClient := ledger.New(cfg.SolanaRPCURL, programID)

	coord := coordinator.New(st, ledgerClient, programID, authorityPubkey, cfg.JoinTimeoutSeconds, cfg.SettleTimeoutSeconds)

	server := rpcserver.New(coord, st, cfg.InternalHMACSecret)

	finalizerWorker, err := finalizer.New(st, ledgerClient, authorityKeypair, authorityPubkey, programID, cfg.FinalizerPollInterval())
	if err != nil {
		log.Fatal("failed to start finalizer", "error", err)
	}
	finalizerWorker.Notify = func(matchID int64) {
		notifyMatch(ctx, coord, server, matchID)
	}
	finalizerWorker.Start()
	defer finalizerWorker.Stop()

	watcherWorker := watcher.New(st, cfg.TimeoutWatcherPollInterval())
	watcherWorker.Start()
	defer watcherWorker.Stop()

	if err := server.Start(cfg.AppBindAddr); err != nil {
		log.Fatal("failed to start http server", "error", err)
	}

	log.Info("wagerd started", "addr", cfg.AppBindAddr, "program_id", programID.String())

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("error during http server shutdown", "error", err)
	}
}

// notifyMatch pushes a match's current status projection to websocket
// subscribers; it is best-effort and never blocks a worker's main loop.
func notifyMatch(ctx context.Context, coord *coordinator.Coordinator, server *rpcserver.Server, matchID int64) {
	resp, err := coord.Status(ctx, matchID)
	if err != nil {
		return
	}
	server.Broadcast(resp.MatchID, resp)
}

// loadKeypair reads a Solana CLI-style JSON keypair file (a byte array
// containing the 64-byte ed25519 secret key).
func loadKeypair(path string) (solana.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file %s: %w", path, err)
	}
	var bytes []byte
	if err := json.Unmarshal(data, &bytes); err != nil {
		return nil, fmt.Errorf("failed to parse keypair file %s: %w", path, err)
	}
	return solana.PrivateKey(bytes), nil
}
