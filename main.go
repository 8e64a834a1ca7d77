package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luoyjx/minikv/config"
	"github.com/luoyjx/minikv/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON or YAML config file")
	port := flag.Int("port", 0, "port to listen on, overrides the config")
	snapshotPath := flag.String("snapshot", "", "snapshot file, overrides the config")
	logLevel := flag.String("log-level", "", "log level, overrides the config")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "loading config from env: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.ServerPort = *port
	}
	if *snapshotPath != "" {
		cfg.SnapshotPath = *snapshotPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log, closer, err := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, *configPath, log)
	if err != nil {
		log.Error().Err(err).Msg("initializing")
		closer.Close()
		os.Exit(1)
	}

	if err := a.run(ctx, nil); err != nil {
		log.Error().Err(err).Msg("server stopped")
		stop()
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("shut down gracefully")
}
