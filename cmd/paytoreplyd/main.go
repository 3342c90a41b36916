package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"paytoreply/config"
	"paytoreply/core"
	"paytoreply/observability/logging"
	"paytoreply/rpc"
	"paytoreply/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PAYTOREPLY_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.Setup("paytoreplyd", env, cfg.LogFile)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	donationAddr, _, err := cfg.DonationAddressBytes()
	if err != nil {
		logger.Error("Failed to decode donation address", slog.Any("error", err))
		os.Exit(1)
	}
	alloc, err := cfg.GenesisAllocBytes()
	if err != nil {
		logger.Error("Failed to decode genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}

	node, err := core.NewNode(db, core.NodeConfig{
		DonationAddress: donationAddr,
		GenesisAlloc:    alloc,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("Failed to initialise node", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Starting JSON-RPC server",
		slog.String("address", cfg.RPCAddress),
		slog.String("network", cfg.NetworkName),
	)
	server := rpc.NewServer(node)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
