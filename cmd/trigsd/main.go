package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/trigs/trigs/internal/config"
	"github.com/trigs/trigs/internal/logging"
	"github.com/trigs/trigs/internal/player"
	"github.com/trigs/trigs/internal/protocol"
	"github.com/trigs/trigs/internal/remote"
)

var (
	configPath = flag.String("config", defaultConfigPath(), "Path to configuration file")
	addr       = flag.String("addr", "", "Listen address (overrides serve.address)")
	logLevel   = flag.String("log-level", "", "Log level (overrides log.level)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Serve.Address = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// run serves one local player session to remote controllers until interrupted
func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limits := protocol.Limits{
		MaxChunks:     cfg.Serve.MaxChunks,
		MaxChunkBytes: cfg.Serve.MaxChunkBytes,
	}

	server := remote.NewServer(logger.Named("server"))
	listener := remote.NewListener(cfg.Serve.Address, server, limits, logger.Named("listener"))
	if err := listener.Start(); err != nil {
		return err
	}
	defer listener.Stop()

	newSession := func() (player.Player, error) {
		engine := player.NewSpeakerEngine(cfg.Audio.Buffer.D(), logger.Named("speaker"))
		return player.NewLocal(engine, player.WithLogger(logger.Named("player"))), nil
	}
	dispatcher := remote.NewDispatcher(server, newSession, logger.Named("dispatcher"))
	defer dispatcher.Close(context.Background())

	logger.Info("trigsd running", zap.Stringer("addr", listener.Addr()))

	err := dispatcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func defaultConfigPath() string {
	// Check common locations
	locations := []string{
		"./trigs.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "trigs", "config.yaml"),
		"/etc/trigs/config.yaml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// Default to first location if none exist
	return locations[0]
}
