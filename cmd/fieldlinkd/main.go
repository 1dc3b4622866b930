// fieldlinkd runs the realtime assistance gateway daemon.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fieldlink/internal/ai"
	"fieldlink/internal/config"
	"fieldlink/internal/daemon"
	"fieldlink/internal/inspection"
	"fieldlink/internal/logging"
	"fieldlink/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := os.Getenv("FIELDLINK_CONFIG")
	cfg, path, found, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stdout",
			filepath.Join(cfg.Paths.LogDir, "fieldlinkd.log"),
		},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if found {
		logger.Info("loaded configuration", logging.String("path", path))
	} else {
		logger.Info("no config file found, using defaults")
	}

	store, err := inspection.Open(cfg)
	if err != nil {
		logger.Error("open inspection store", logging.Error(err))
		os.Exit(1)
	}

	engine := workflow.NewEngine(cfg, logger)
	assist := ai.NewClient(cfg.AI, logger)

	d, err := daemon.New(cfg, store, engine, assist, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("fieldlinkd shutting down")
	d.Stop()
}
