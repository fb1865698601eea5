package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"novamarket/config"
	"novamarket/core"
	"novamarket/core/genesis"
	"novamarket/gateway"
	"novamarket/observability/logging"
	"novamarket/rpc"
	"novamarket/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis TOML file (overrides config GenesisFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NOVA_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var logOpts *logging.Options
	if strings.TrimSpace(cfg.LogFile) != "" {
		logOpts = &logging.Options{
			FilePath:   cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		}
	}
	logger := logging.Setup("novamarketd", env, logOpts)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("Failed to open ledger database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(db)
	node.SetLogger(logger)

	genesisPath := strings.TrimSpace(*genesisFlag)
	if genesisPath == "" {
		genesisPath = strings.TrimSpace(cfg.GenesisFile)
	}
	if genesisPath != "" {
		spec, err := genesis.LoadFile(genesisPath)
		if err != nil {
			logger.Error("Failed to load genesis spec", slog.Any("error", err))
			os.Exit(1)
		}
		if err := spec.Apply(node.Ledger()); err != nil {
			logger.Error("Failed to apply genesis spec", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Genesis spec applied", slog.String("path", genesisPath))
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("Metrics listening", slog.String("addr", cfg.MetricsAddress))
		if err := server.ListenAndServe(); err != nil {
			logger.Error("Metrics server stopped", slog.Any("error", err))
		}
	}()

	go func() {
		feed := gateway.New(node)
		logger.Info("Gateway listening", slog.String("addr", cfg.GatewayAddress))
		if err := feed.Start(cfg.GatewayAddress); err != nil {
			logger.Error("Gateway stopped", slog.Any("error", err))
		}
	}()

	logger.Info("Node starting",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
	)
	server := rpc.NewServer(node)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
