package main

import (
	"fmt"

	"minesweeper-server/cmd/minesctl/ui"
	"minesweeper-server/internal/storage/sqlite"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func statsCmd(storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate map and player counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(*storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			counts, err := store.CellCounts(ctx)
			if err != nil {
				return err
			}
			players, err := store.PlayerCount(ctx)
			if err != nil {
				return err
			}

			fmt.Println(ui.KeyValues("  ",
				ui.KV("Revealed safe cells", humanize.Comma(int64(counts.Revealed))),
				ui.KV("Revealed mines", humanize.Comma(int64(counts.Mines))),
				ui.KV("Flagged cells", humanize.Comma(int64(counts.Flagged))),
				ui.KV("Known players", humanize.Comma(int64(players))),
			))
			return nil
		},
	}
}

func topCmd(storePath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the highest-scoring players",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(*storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			standings, err := store.TopPlayers(cmd.Context(), limit)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(standings))
			for i, p := range standings {
				rows = append(rows, []string{
					fmt.Sprintf("%d", i+1),
					p.ID,
					humanize.Comma(int64(p.Score)),
					humanize.Time(p.LastSeen),
				})
			}
			fmt.Println(ui.Table([]string{"#", "Player", "Score", "Last seen"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of players to show")
	return cmd
}
