package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"blinkdb/internal/db"
	"blinkdb/internal/diskstore"
	"blinkdb/internal/logging"
	"blinkdb/internal/reactor"
	"blinkdb/pkg/config"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (optional)")
	port       = flag.Int("port", 0, "Port to bind the server (overrides config)")
	dataDir    = flag.String("data-dir", "", "Disk-tier data directory (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *port != 0 {
		cfg.Network.Port = *port
	}
	if *dataDir != "" {
		cfg.Node.DataDir = *dataDir
	}

	logger, err := logging.InitializeFromConfig(cfg.Node.ID, logging.LogConfig{
		Level:         cfg.Logging.Level,
		EnableConsole: cfg.Logging.EnableConsole,
		EnableFile:    cfg.Logging.EnableFile,
		LogFile:       cfg.Logging.LogFile,
		BufferSize:    cfg.Logging.BufferSize,
		LogDir:        cfg.Logging.LogDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx := logging.WithCorrelationID(context.Background(), logging.NewCorrelationID())

	logging.Info(ctx, logging.ComponentMain, logging.ActionStart, "blinkdb starting", map[string]interface{}{
		"node_id":  cfg.Node.ID,
		"port":     cfg.Network.Port,
		"data_dir": cfg.Node.DataDir,
	})

	disk, err := diskstore.Open(cfg.Node.DataDir)
	if err != nil {
		logging.Fatal(ctx, logging.ComponentMain, logging.ActionStart, "failed to open disk store", err)
		logger.Close()
		os.Exit(1)
	}

	store := db.New(cfg.Cache.HotCapacity, cfg.Cache.WarmCapacity, uint32(cfg.Cache.PromotionThreshold), disk)

	shutdownCtx, cancel := context.WithCancel(ctx)

	r := reactor.New(reactor.Config{
		BindAddr:        cfg.Network.BindAddr,
		Port:            cfg.Network.Port,
		MaxEvents:       cfg.Reactor.MaxEvents,
		MaxInputBuffer:  cfg.Reactor.MaxInputBuffer,
		MaxOutputBuffer: cfg.Reactor.MaxOutputBuffer,
	}, store)

	serverErr := make(chan error, 1)
	go func() { serverErr <- r.Run(shutdownCtx) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		logging.Info(ctx, logging.ComponentMain, logging.ActionStop, "shutdown signal received")
		cancel()
		<-serverErr
	case err := <-serverErr:
		cancel()
		if err != nil {
			logging.Fatal(ctx, logging.ComponentMain, logging.ActionStop, "reactor exited with error", err)
			logger.Close()
			os.Exit(1)
		}
	}

	if err := store.Close(); err != nil {
		logging.Error(ctx, logging.ComponentMain, logging.ActionStop, "failed to persist disk store index", err)
		logger.Close()
		os.Exit(1)
	}

	logging.Info(ctx, logging.ComponentMain, logging.ActionStop, "blinkdb shutdown complete")
}
