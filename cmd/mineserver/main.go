package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"minesweeper-server/internal/support/logging"

	"github.com/spf13/cobra"
)

const appName = "mineserver"

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Toroidal multiplayer minesweeper server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(logging.LevelInfo)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.AddCommand(serveCmd(&configPath))
	return cmd
}

func shutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
