package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/postgres"
)

func runsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent ingest runs from the Postgres summary store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			if !cfg.Postgres.Enabled {
				return apperrors.Invalidf("postgres.enabled is false")
			}
			if limit < 1 {
				return apperrors.Invalidf("--limit must be >= 1, got %d", limit)
			}
			ctx := cmd.Context()
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()
			store := analytics.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-36s  %-20s  %-6s  %10s  %6s  %10s\n", "RUN", "FINISHED", "SCHEMA", "RECORDS", "DROPS", "DOCS/S")
			for _, r := range runs {
				fmt.Fprintf(out, "%-36s  %-20s  %-6s  %10d  %6d  %10.0f\n",
					r.RunID, r.FinishedAt.Format(time.DateTime), r.Schema, r.Records, r.Err, r.DocsPerSec)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "runs to list")
	return cmd
}
