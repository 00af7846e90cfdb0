// Command engined is the engine's CLI entrypoint, grounded on the
// teacher's cmd/nhb/main.go shape: parse a config path flag, load and
// validate configuration, wire the eight actors into a supervisor,
// and block until an OS signal or actor failure tears the process
// down.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.etcd.io/bbolt"

	"nhbchain/aggregator"
	"nhbchain/application"
	"nhbchain/broadcast"
	"nhbchain/cmd/internal/passphrase"
	"nhbchain/config"
	"nhbchain/consensus"
	"nhbchain/consensus/automaton"
	"nhbchain/consensus/engine"
	nhbcrypto "nhbchain/crypto"
	"nhbchain/economy"
	engineruntime "nhbchain/engine"
	"nhbchain/marshal"
	"nhbchain/network"
	"nhbchain/observability"
	"nhbchain/observability/logging"
	"nhbchain/p2p"
	"nhbchain/seeder"
	"nhbchain/sysmetrics"
)

// validatorPassEnv names the environment variable checked for the
// validator keystore passphrase before falling back to an interactive
// terminal prompt.
const validatorPassEnv = "ENGINE_VALIDATOR_PASS"

func main() {
	configPath := flag.String("config", "./engine.toml", "path to engine.toml")
	flag.Parse()

	log := logging.Setup("engined", os.Getenv("ENGINE_ENV"))

	if err := run(*configPath, log); err != nil {
		log.Error("engined: fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, log *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.ValidateConfig(*cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(cfg.DataDir, cfg.PartitionPrefix+".bbolt")
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	validatorKey, err := loadValidatorKey(cfg)
	if err != nil {
		return fmt.Errorf("load validator key: %w", err)
	}
	validatorID := validatorKey.PubKey().Address().String()

	registry := prometheus.NewRegistry()

	scheme, err := nhbcrypto.NewBLSScheme(validatorKey.Bytes(), 1)
	if err != nil {
		return fmt.Errorf("construct threshold scheme: %w", err)
	}

	app, err := application.New(db, log, cfg.ThreeCardJackpotBase, cfg.UthJackpotBase)
	if err != nil {
		return fmt.Errorf("construct application handler: %w", err)
	}

	stopped := make(chan struct{})
	mailbox := automaton.NewMailbox(cfg.MailboxSize, app.Genesis(), stopped, log)

	store, err := marshal.Open(db, marshal.FreezerConfig{
		TableResizeFrequency: cfg.FreezerTableResizeFrequency,
		TableResizeChunkSize: cfg.FreezerTableResizeChunkSize,
	}, cfg.MaxRepair, consensus.View(cfg.ViewRetentionTimeout()))
	if err != nil {
		return fmt.Errorf("open marshal store: %w", err)
	}

	sd := seeder.New(scheme, mailbox, cfg.MaxPendingSeedListeners, log)

	agg, err := aggregator.New(db, scheme, log)
	if err != nil {
		return fmt.Errorf("construct aggregator: %w", err)
	}
	aggCfg := aggregator.DefaultAggregationConfig()
	aggCfg.Window = cfg.AggregationWindow
	aggCfg.RebroadcastTimeout = cfg.RebroadcastTimeout()
	driver := aggregator.NewDriver(aggCfg, agg, app.Feed(), log)

	buf := broadcast.New(cfg.DequeSize)

	netServer := p2p.NewServer(cfg.ListenAddress, nil, validatorKey, cfg.ChainID)
	dispatcher := network.New(netServer, store, sd, agg, mailbox, []string{validatorID}, log)
	netServer.SetHandler(dispatcher)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics := observability.Engine()
	retention := time.Duration(cfg.ViewRetentionTimeout()) * cfg.PrecommitTimeout()

	var prevFinalized consensus.Digest
	onFinalized := func(view consensus.View, digest consensus.Digest) {
		block := consensus.Block{View: view, Digest: digest, Parent: prevFinalized}
		prevFinalized = digest
		height := uint64(view)

		if err := store.Finalize(height, block); err != nil {
			log.Error("marshal: finalize failed", "error", err, "height", height)
		}
		mailbox.Finalized(ctx, block)
		metrics.RecordFinalized(height)
		enqueueFinalizedBroadcast(buf, netServer, block)

		go func() {
			waitCtx, cancelWait := context.WithTimeout(ctx, retention)
			defer cancelWait()
			seed, ok := sd.AwaitSeed(waitCtx, view)
			if !ok {
				seed = consensus.Seed{}
				log.Warn("seeder: retention window elapsed without a recovered seed, substituting the all-zero seed", "view", view,
					"event", economy.SeedTimeoutEvent{View: uint64(view), RetentionTimeout: cfg.ViewRetentionTimeout()})
				metrics.RecordSeedTimeout()
			}
			mailbox.Seeded(ctx, block, seed)
		}()
	}

	validators := []engine.Validator{
		{ID: validatorID, Stake: big.NewInt(1), Engagement: big.NewInt(0)},
	}
	eng := engine.NewEngine(validatorID, validators, scheme, mailbox, mailbox,
		engine.WithLogger(log),
		engine.WithTimeouts(engine.TimeoutConfig{
			Propose:   cfg.ProposeTimeout(),
			Prevote:   cfg.PrevoteTimeout(),
			Precommit: cfg.PrecommitTimeout(),
		}),
		engine.WithFinalizedHook(onFinalized),
	)

	gauges := sysmetrics.NewGauges(registry)

	actors := []engineruntime.Actor{
		{Name: "metrics", Run: func(ctx context.Context) error { return sysmetrics.Run(ctx, gauges) }},
		{Name: "seeder", Run: func(ctx context.Context) error {
			return runSeederRetention(ctx, sd, eng, consensus.View(cfg.ViewRetentionTimeout()))
		}},
		{Name: "aggregation", Run: driver.Run},
		{Name: "aggregator", Run: func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }},
		{Name: "broadcast", Run: func(ctx context.Context) error { return runNetwork(ctx, netServer, cfg.BootstrapPeers, buf, log) }},
		{Name: "application", Run: func(ctx context.Context) error { mailbox.Run(ctx, app); return ctx.Err() }},
		{Name: "marshal", Run: func(ctx context.Context) error { return runMarshalRetention(ctx, store, eng) }},
		{Name: "consensus", Run: eng.Run},
	}

	sup := engineruntime.New(log, actors)

	log.Info("engined: starting", "validator", validatorID, "data_dir", cfg.DataDir)
	err = sup.Run(ctx, stopped)
	close(stopped)
	return err
}

// loadValidatorKey prefers a keystore-backed key when
// ValidatorKeystorePath is configured, decrypting it with a
// passphrase resolved from validatorPassEnv (or an interactive
// prompt); otherwise it falls back to the plaintext hex ValidatorKey,
// matching the teacher's loadValidatorKey precedence in cmd/nhb.
func loadValidatorKey(cfg *config.EngineConfig) (*nhbcrypto.PrivateKey, error) {
	if cfg.ValidatorKeystorePath != "" {
		passSource := passphrase.NewSource(validatorPassEnv)
		pass, err := passSource.Get()
		if err != nil {
			return nil, fmt.Errorf("resolve keystore passphrase: %w", err)
		}
		key, err := nhbcrypto.LoadFromKeystore(cfg.ValidatorKeystorePath, pass)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore %s: %w", cfg.ValidatorKeystorePath, err)
		}
		return key, nil
	}

	keyBytes, err := hex.DecodeString(cfg.ValidatorKey)
	if err != nil {
		return nil, fmt.Errorf("decode validator key: %w", err)
	}
	key, err := nhbcrypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse validator key: %w", err)
	}
	return key, nil
}

// runMarshalRetention periodically prunes the unfinalized log against
// the engine's current view, matching spec.md §4.3's retention
// policy.
func runMarshalRetention(ctx context.Context, store *marshal.Store, eng *engine.Engine) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			store.PruneBelow(eng.CurrentView())
		}
	}
}

// runSeederRetention periodically forgets seed material for views
// that have fallen behind the engine's current view by more than the
// retention window, bounding the seeder's memory to live views only.
func runSeederRetention(ctx context.Context, sd *seeder.Seeder, eng *engine.Engine, retention consensus.View) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current := eng.CurrentView()
			if current > retention {
				sd.Forget(current - retention)
			}
		}
	}
}

// enqueueFinalizedBroadcast queues a newly finalized block's payload,
// priority lane, for delivery to every currently connected peer; the
// drain loop in runNetwork turns these into actual sends.
func enqueueFinalizedBroadcast(buf *broadcast.Buffer, server *p2p.Server, block consensus.Block) {
	payload := broadcast.Payload{Digest: [32]byte(block.Digest), Bytes: block.Payload, Priority: true}
	for _, peer := range server.Peers() {
		buf.Enqueue(peer, payload)
	}
}

// runNetwork owns the networking layer's lifetime: it starts the p2p
// server's accept loop, dials the configured bootstrap peers, and
// drains the broadcast buffer's per-peer priority queues into actual
// sends until the actor is torn down.
func runNetwork(ctx context.Context, server *p2p.Server, bootstrapPeers []string, buf *broadcast.Buffer, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	for _, addr := range bootstrapPeers {
		if err := server.Connect(addr); err != nil {
			log.Warn("network: bootstrap dial failed", "address", addr, "error", err)
		}
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return fmt.Errorf("p2p server stopped: %w", err)
		case <-ticker.C:
			drainBroadcastBuffer(server, buf, log)
		}
	}
}

// drainBroadcastBuffer sends one queued payload per connected peer,
// keeping the networking actor's per-tick work bounded.
func drainBroadcastBuffer(server *p2p.Server, buf *broadcast.Buffer, log *slog.Logger) {
	for _, peer := range server.Peers() {
		payload, ok := buf.Dequeue(peer)
		if !ok {
			continue
		}
		msg, err := p2p.NewBroadcastMessage(p2p.BroadcastPayload{Digest: consensus.Digest(payload.Digest), Data: payload.Bytes})
		if err != nil {
			log.Error("network: encode broadcast payload failed", "error", err)
			continue
		}
		if err := server.SendTo(peer, msg); err != nil {
			log.Warn("network: send broadcast payload failed", "peer", peer, "error", err)
			buf.RemovePeer(peer)
		}
	}
}
