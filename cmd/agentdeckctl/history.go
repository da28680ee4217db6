package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or prune per-test run history",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newHistoryListCmd(st))
	cmd.AddCommand(newHistoryPruneCmd(st))
	return cmd
}

func newHistoryListCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "list [qualified-name]",
		Short: "List history entries, optionally filtered to one test",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				entries, err := st.client.ListAllHistory(cmd.Context())
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No history.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "QUALIFIED_NAME\tINDEX\tPASSED\tDURATION(s)\tCOMPLETED")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%d\t%t\t%.2f\t%s\n",
						e.QualifiedName, e.Index, e.Result.Passed, e.Result.DurationSeconds,
						e.Result.CompletedAt.Format("2006-01-02T15:04:05Z07:00"))
				}
				return tw.Flush()
			}

			name := strings.TrimSpace(args[0])
			results, err := st.client.ListHistory(cmd.Context(), name)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "No history for", name)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tPASSED\tDURATION(s)\tTOKENS\tCOMPLETED")
			for i, r := range results {
				fmt.Fprintf(tw, "%d\t%t\t%.2f\t%d\t%s\n", i, r.Passed, r.DurationSeconds, r.TotalTokens,
					r.CompletedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return tw.Flush()
		},
	}
}

func newHistoryPruneCmd(st *cliState) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "prune [qualified-name]",
		Short: "Delete history for one test, or all tests with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				if err := st.client.TruncateAllHistory(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "pruned all history")
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("agentdeck: prune requires a qualified test name or --all")
			}
			name := strings.TrimSpace(args[0])
			if err := st.client.TruncateHistory(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned history for %s\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "prune history for every test")
	return cmd
}
