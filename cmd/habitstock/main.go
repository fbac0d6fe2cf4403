package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"habitstock/internal/cli"
	"habitstock/internal/config"
	"habitstock/internal/logging"
)

func main() {
	configDir := config.DefaultConfigDir()
	if v := os.Getenv("HABITSTOCK_CONFIG_DIR"); v != "" {
		configDir = v
	}

	// First run: seed a commented default config.
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		if err := config.WriteDefault(configDir); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not write default config: %v\n", err)
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
