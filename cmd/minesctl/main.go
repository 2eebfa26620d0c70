package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var storePath string

	cmd := &cobra.Command{
		Use:   "minesctl",
		Short: "Read-only inspector for a mineserver database",
	}

	cmd.PersistentFlags().StringVar(&storePath, "store", "./data/mines.db", "Path to the mineserver SQLite database")
	cmd.AddCommand(statsCmd(&storePath))
	cmd.AddCommand(topCmd(&storePath))
	return cmd
}
