package main

import (
	"fmt"
	"os"

	"marketwatch/internal/cli"
	"marketwatch/internal/config"
	"marketwatch/internal/logging"
)

func main() {
	configDir := os.Getenv("MARKETWATCH_CONFIG_DIR")

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marketwatch: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	rootCmd := cli.NewRootCmd(cfg, configDir, logger)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
