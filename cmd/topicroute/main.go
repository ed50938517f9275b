package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bjaus/topicroute"
)

// Global flags
var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "topicroute",
		Short: "Topic routing for publish/subscribe brokers",
		Long: `topicroute matches published topics against route templates and
decides whether each message is forwarded to subscribers.

Use "match" to check which template a topic resolves to, and "serve" to run
the demo weather routes behind a NATS bridge.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Router configuration file (YAML)")

	rootCmd.AddCommand(newMatchCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}

// loadConfig reads --config, or returns the defaults when it is unset.
func loadConfig() (topicroute.Config, error) {
	if configPath == "" {
		return topicroute.DefaultConfig(), nil
	}
	cfg, err := topicroute.LoadConfig(configPath)
	if err != nil {
		return topicroute.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger at the configured level.
func newLogger(cfg topicroute.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
