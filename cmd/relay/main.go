// ABOUTME: Entry point for the channel relay
// ABOUTME: Watches source channels and selectively forwards messages to a recipient roster

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/channel-relay/internal/admin"
	"github.com/2389/channel-relay/internal/config"
	"github.com/2389/channel-relay/internal/policy"
	"github.com/2389/channel-relay/internal/relay"
	"github.com/2389/channel-relay/internal/transport/matrix"
)

const banner = `
    ╭─────────────────────────────────╮
    │                                 │
    │   ┏━╸╻ ╻┏━┓┏┓╻┏┓╻┏━╸╻          │
    │   ┃  ┣━┫┣━┫┃┗┫┃┗┫┣╸ ┃          │
    │   ┗━╸╹ ╹╹ ╹╹ ╹╹ ╹┗━╸┗━╸        │
    │          relay                  │
    │                                 │
    ╰─────────────────────────────────╯
`

// getConfigPath returns the path to the relay config file.
// Priority: RELAY_CONFIG env var > XDG_CONFIG_HOME/channel-relay/relay.toml > ~/.config/channel-relay/relay.toml
func getConfigPath() string {
	if envPath := os.Getenv("RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "relay.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "channel-relay", "relay.toml")
}

// getDataPath returns the path to the relay data directory.
// Priority: XDG_DATA_HOME/channel-relay > ~/.local/share/channel-relay
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "channel-relay")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()
	dataPath := getDataPath()

	// Ensure data directory exists
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Load config; a missing access token fails here, before anything starts
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level)

	policyPath := cfg.Relay.PolicyPath
	if policyPath == "" {
		policyPath = filepath.Join(dataPath, "policy.json")
	}
	directoryPath := cfg.Relay.DirectoryPath
	if directoryPath == "" {
		directoryPath = filepath.Join(dataPath, "directory.db")
	}

	// Print startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Policy:     %s\n", policyPath)
	fmt.Println()

	if len(cfg.Relay.Operators) == 0 {
		logger.Warn("no operators configured, admin commands will be rejected")
	}
	if len(cfg.Relay.SourceChannels) == 0 {
		logger.Warn("no source channels configured, nothing will be relayed")
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Peer directory
	dir, err := matrix.OpenDirectory(directoryPath, logger)
	if err != nil {
		return fmt.Errorf("opening peer directory: %w", err)
	}
	defer dir.Close()

	// Transport
	tp, err := matrix.New(matrix.Config{
		Homeserver:  cfg.Matrix.Homeserver,
		UserID:      cfg.Matrix.UserID,
		AccessToken: cfg.Matrix.AccessToken,
		SourceRooms: cfg.Relay.SourceChannels,
	}, dir, logger)
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}

	// Policy store
	store := policy.Open(policyPath, logger)

	// Operator identities resolve to the same numeric IDs the transport
	// derives for inbound senders.
	operators := make([]int64, 0, len(cfg.Relay.Operators))
	for _, op := range cfg.Relay.Operators {
		operators = append(operators, matrix.PeerID(op))
	}

	fanout := relay.NewFanout(store, tp, logger)
	gateway := admin.NewGateway(store, tp, operators, logger)
	loop := relay.NewLoop(store, tp, fanout, gateway, cfg.Relay.RecoveryDelay, logger)

	logger.Info("starting relay",
		"sources", len(cfg.Relay.SourceChannels),
		"operators", len(cfg.Relay.Operators),
	)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- tp.Run(ctx)
	}()

	loopErr := loop.Run(ctx)
	if err := <-syncErr; err != nil {
		return err
	}
	return loopErr
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
