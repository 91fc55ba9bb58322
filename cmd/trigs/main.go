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

	"github.com/trigs/trigs/internal/calibration"
	"github.com/trigs/trigs/internal/config"
	"github.com/trigs/trigs/internal/control"
	"github.com/trigs/trigs/internal/display"
	"github.com/trigs/trigs/internal/logging"
	"github.com/trigs/trigs/internal/player"
	"github.com/trigs/trigs/internal/playlist"
	"github.com/trigs/trigs/internal/protocol"
	"github.com/trigs/trigs/internal/remote"
	"github.com/trigs/trigs/internal/trigger"
)

var (
	configPath = flag.String("config", defaultConfigPath(), "Path to configuration file")
	remoteAddr = flag.String("remote", "", "Drive the player served at host:port instead of playing locally")
	discovery  = flag.String("discovery", "", "Trigger discovery: helper, proc or none (overrides triggers.discovery)")
	keys       = flag.String("keys", "", "Keys acting as virtual triggers (overrides triggers.keys)")
	policy     = flag.String("backward", "", "Backward policy: undo or previous (overrides control.backward_policy)")
	logLevel   = flag.String("log-level", "", "Log level (overrides log.level)")
	writeCfg   = flag.Bool("write-config", false, "Write the effective configuration to the -config path and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <wav file or directory> ...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Play a show locally with two shutter remotes\n")
		fmt.Fprintf(os.Stderr, "  %s /srv/show\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n  # Drive a player on another machine, keys f and b as triggers\n")
		fmt.Fprintf(os.Stderr, "  %s --remote 10.0.0.2:8000 --discovery none --keys fb /srv/show\n", os.Args[0])
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if *writeCfg {
		if err := config.SaveConfig(*configPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", *configPath)
		return
	}

	if len(cfg.Playlist.Paths) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("trigs failed", zap.Error(err))
		if trigger.IsDiscoveryError(err) {
			var derr *trigger.DiscoveryError
			if errors.As(err, &derr) && derr.Output != "" {
				fmt.Fprintf(os.Stderr, "Discovery helper output:\n%s\n", derr.Output)
			}
			fmt.Fprintf(os.Stderr, "Use --discovery none --keys <two keys> to run without shutter remotes\n")
		}
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config) {
	if *remoteAddr != "" {
		cfg.Remote.Address = *remoteAddr
	}
	if *discovery != "" {
		cfg.Triggers.Discovery = *discovery
	}
	if *keys != "" {
		cfg.Triggers.Keys = *keys
	}
	if *policy != "" {
		cfg.Control.BackwardPolicy = *policy
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if flag.NArg() > 0 {
		cfg.Playlist.Paths = flag.Args()
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backward, err := control.ParseBackwardPolicy(cfg.Control.BackwardPolicy)
	if err != nil {
		return err
	}

	p, err := openPlayer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Terminate(context.Background())

	if _, err := playlist.Load(ctx, p, cfg.Playlist.Paths, logger.Named("playlist")); err != nil {
		return err
	}

	store, err := calibration.OpenStore(cfg.Calibration.StateDir)
	if err != nil {
		return err
	}
	defer store.Close()

	var keyboard *trigger.Keyboard
	if cfg.Triggers.Keys != "" {
		keyboard, err = trigger.NewKeyboard(os.Stdin, []byte(cfg.Triggers.Keys), logger.Named("keyboard"))
		if err != nil {
			return err
		}
		if err := keyboard.Start(); err != nil {
			return err
		}
		defer keyboard.Close()
	}

	discover, closeTriggers := triggerSource(cfg, keyboard, logger)
	defer closeTriggers()

	disp := display.NewTerminal(os.Stdout, cfg.Control.DisplayWidth)
	defer disp.Close()

	loop := &control.Loop{
		Player: p,
		Calibrator: &calibration.Calibrator{
			Discover:     discover,
			PollInterval: cfg.Triggers.PollInterval.D(),
			Logger:       logger.Named("calibration"),
		},
		Store:           store,
		Display:         disp,
		Policy:          backward,
		RefreshInterval: cfg.Control.RefreshInterval.D(),
		FlashDuration:   cfg.Control.FlashDuration.D(),
		Logger:          logger.Named("control"),
	}
	if keyboard != nil {
		loop.Closed = keyboard.Closed()
	}

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted")
		return nil
	}
	return err
}

// openPlayer connects to the remote player if one is configured, otherwise
// plays through the local speaker
func openPlayer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (player.Player, error) {
	if cfg.Remote.Address == "" {
		engine := player.NewSpeakerEngine(cfg.Audio.Buffer.D(), logger.Named("speaker"))
		return player.NewLocal(engine, player.WithLogger(logger.Named("player"))), nil
	}

	conn, err := remote.Dial(ctx, cfg.Remote.Address, protocol.DefaultLimits)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to remote player", zap.String("addr", cfg.Remote.Address))
	return remote.NewPlayer(remote.NewClient(conn, logger.Named("client")), cfg.Remote.StatusTTL.D()), nil
}

// triggerSource returns the discovery used by calibration and a function releasing its triggers
func triggerSource(cfg *config.Config, keyboard *trigger.Keyboard, logger *zap.Logger) (calibration.DiscoverFunc, func()) {
	var virtual []trigger.Trigger
	if keyboard != nil {
		virtual = keyboard.Triggers()
	}

	var discoverer trigger.Discoverer
	switch cfg.Triggers.Discovery {
	case "helper":
		discoverer = trigger.HelperDiscoverer{Path: cfg.Triggers.Helper}
	case "proc":
		discoverer = trigger.ProcDiscoverer{File: cfg.Triggers.DevicesFile}
	default:
		return func(context.Context) ([]trigger.Trigger, error) {
			return virtual, nil
		}, func() {}
	}

	registry := trigger.NewRegistry(discoverer, logger.Named("triggers"))
	registry.Attach(virtual...)
	return registry.Discover, registry.CloseAll
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
