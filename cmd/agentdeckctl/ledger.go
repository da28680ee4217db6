package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLedgerCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger <qualified-name>",
		Short: "Show the pass-rate trend for a test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			entries, err := st.client.Ledger(cmd.Context(), name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No ledger entries for", name)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WINDOW_START\tTOTAL\tPASSED\tPASS_RATE\tAVG_DURATION(s)\tAVG_TOKENS")
			for _, e := range entries {
				rate := 0.0
				if e.Total > 0 {
					rate = float64(e.Passed) / float64(e.Total)
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.1f\n",
					e.WindowStart.Format("2006-01-02T15:04:05Z07:00"), e.Total, e.Passed, rate,
					e.AvgDurationSeconds, e.AvgTokens)
			}
			return tw.Flush()
		},
	}
}
