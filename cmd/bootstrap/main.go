package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/Mindburn-Labs/ticket-auction/pkg/config"
	"github.com/Mindburn-Labs/ticket-auction/pkg/node"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to environment only)")
	demo := flag.Bool("demo", false, "run a sample auction against a simulated clock")
	flag.Parse()

	cfg := config.Load()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx := context.Background()

	var opts []node.Option
	var clock *simClock
	if *demo {
		clock = &simClock{}
		opts = append(opts, node.WithClock(clock.Now))
	}

	n, err := node.Open(ctx, cfg, opts...)
	if err != nil {
		log.Fatalf("Failed to open node: %v", err)
	}
	defer func() {
		if err := n.Close(ctx); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	d, err := n.Bootstrap(ctx)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		return
	}
	logger.Info("[bootstrap] deployment ready",
		"orchestrator", d.Orchestrator,
		"registry", d.Registry,
		"escrow", d.Escrow,
		"bidding_engine", d.BiddingEngine,
		"gateway", d.Gateway,
	)

	if *demo {
		if err := runDemo(ctx, n, d, clock, logger); err != nil {
			logger.Error("demo failed", "error", err)
			return
		}
	}
}
