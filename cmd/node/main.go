package main

import (
	"context"
	"encoding/hex"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bingot/api"
	"bingot/blockchain"
	"bingot/logger"
	"bingot/metrics"
	"bingot/mining"
	"bingot/mocks"
	"bingot/node"
	"bingot/wallet"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	started := time.Now()
	defaults := node.DefaultConfig()

	// Command line flags
	httpAddr := flag.String("http", ":8372", "HTTP API listen address")
	nodeID := flag.String("id", "", "Node ID (auto-generated if not provided)")
	workers := flag.Int("workers", defaults.Mining.Workers, "Mining worker goroutines")
	difficulty := flag.Uint("difficulty", uint(defaults.Difficulty), "Leading zero bits required of mined blocks")
	minDifficulty := flag.Uint("min-difficulty", uint(defaults.Chain.MinDifficulty), "Lowest difficulty accepted from peers (0 means -difficulty)")
	reward := flag.Uint64("reward", defaults.Reward, "Coinbase reward per mined block")
	searchSpace := flag.Uint64("search-space", mining.DefaultSearchSpace, "Nonces searched per mining round")
	strict := flag.Bool("strict", false, "Reject transactions whose sender is not derived from the signing key")
	key := flag.String("key", "", "Hex wallet key from a previous run (random if empty)")
	txRate := flag.Float64("tx-rate", api.DefaultConfig().TxRate, "Submitted transactions per second, 0 for unlimited")
	bot := flag.Bool("bot", false, "Feed the node with random transfers")
	logLevel := flag.String("log-level", "info", "Log level")
	pretty := flag.Bool("pretty", false, "Human readable logs")
	flag.Parse()

	log := logger.New(os.Stderr, logger.ParseLevel(*logLevel), *pretty)

	if *nodeID == "" {
		*nodeID = uuid.NewString()[:8]
	}
	if *difficulty > blockchain.MaxDifficulty || *minDifficulty > blockchain.MaxDifficulty {
		log.Fatal().Msg("Difficulty must fit in 8 bits")
	}

	w, err := loadWallet(*key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load wallet")
	}

	// Create node configuration
	config := defaults
	config.NodeID = *nodeID
	config.Difficulty = uint8(*difficulty)
	config.Chain.MinDifficulty = uint8(*minDifficulty)
	config.Reward = *reward
	config.StrictSenderBinding = *strict
	config.Mining.Workers = *workers
	config.Mining.SearchSpace = *searchSpace

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := api.NewHub(log)
	fullNode, err := node.New(config, node.Deps{
		Wallet:      w,
		Broadcaster: hub,
		Metrics:     metrics.New(reg),
		Logger:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create node")
	}
	hub.SetReceiver(fullNode)

	apiConfig := api.DefaultConfig()
	apiConfig.Addr = *httpAddr
	apiConfig.TxRate = *txRate
	server := api.NewServer(apiConfig, fullNode, hub, reg, log)

	if *key == "" {
		log.Info().Str("key", hex.EncodeToString(w.Export())).Msg("Generated wallet, pass -key to reuse it")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })
	g.Go(func() error { return fullNode.Run(ctx) })
	if *bot {
		b, err := mocks.NewBot(mocks.DefaultBotConfig(), fullNode, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		g.Go(func() error {
			b.StartPeriodicBehavior(ctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Node stopped with error")
	}

	status := fullNode.Status()
	log.Info().
		Uint64("length", status.Length).
		Str("tip", status.Tip.Short()).
		Uint64("mined", status.Stats.Mined).
		Dur("uptime", time.Since(started)).
		Msg("Node shut down")
}

func loadWallet(key string) (*wallet.Wallet, error) {
	if key == "" {
		return wallet.Generate()
	}
	blob, err := hex.DecodeString(key)
	if err != nil {
		return nil, err
	}
	return wallet.Import(blob)
}
