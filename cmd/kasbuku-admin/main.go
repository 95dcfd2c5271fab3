package main

import (
	"log/slog"
	"os"

	"kasbuku/internal/cli"
)

func main() {
	cfg := cli.Bootstrap("kasbuku-admin")

	rootCmd := cli.NewRootCmd(cfg)
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
