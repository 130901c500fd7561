package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/phobologic/phpconsistent/internal/ranking"
	"github.com/phobologic/phpconsistent/internal/sink"
	"github.com/phobologic/phpconsistent/internal/toon"
)

func newHistoryCmd(stdout io.Writer) *cobra.Command {
	var (
		dbPath string
		runID  string
		top    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Summarize failures stored by the sqlite sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("failure database: %w", err)
			}
			db, err := sink.NewSQLite(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			counts, err := db.CountByTarget(cmd.Context(), runID)
			if err != nil {
				return fmt.Errorf("querying %s: %w", dbPath, err)
			}
			if top > 0 && len(counts) > top {
				counts = counts[:top]
			}

			hotspots := make([]ranking.Hotspot, 0, len(counts))
			for _, c := range counts {
				hotspots = append(hotspots, ranking.Hotspot{Target: c.Target, Failures: c.Count})
			}
			_, _ = fmt.Fprintln(stdout, toon.EncodeHotspots(hotspots))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "phpconsistent.db", "sqlite database written by the sqlite sink")
	cmd.Flags().StringVar(&runID, "run", "", "only count failures of this run id")
	cmd.Flags().IntVarP(&top, "top", "n", 0, "limit to the N most frequent targets")
	return cmd
}
