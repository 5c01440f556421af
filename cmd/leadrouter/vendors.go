package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xaenox/lead-router/internal/rotation"
)

func vendorsCMD(opts *rootOptions) *cobra.Command {
	vendors := &cobra.Command{
		Use:   "vendors",
		Short: "Inspect the operator rotation",
	}

	vendors.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show hot leads assigned per operator, total and today",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			scheduler, err := rotation.NewScheduler(roster(cfg), store, nil, logger)
			if err != nil {
				return err
			}
			stats, err := scheduler.Stats(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("load assignments: %w", err)
			}
			next, err := scheduler.NextTurn(cmd.Context())
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats, next)
		},
	})
	return vendors
}

func printStats(out io.Writer, stats []rotation.OperatorStats, next int) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tOPERATOR\tTODAY\tTOTAL\t")
	for i, s := range stats {
		marker := ""
		if i == next {
			marker = "→"
		}
		fmt.Fprintf(w, "%s\t%s %s\t%d\t%d\t\n", marker, s.Glyph, s.Name, s.Today, s.Total)
	}
	return w.Flush()
}
