package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newJobsCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect test-run jobs",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newJobsListCmd(st))
	cmd.AddCommand(newJobsShowCmd(st))
	return cmd
}

func newJobsListCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := st.client.ListRuns(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB_ID\tSTATUS\tTESTS\tCREATED")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", j.ID, j.Status, len(j.Tests), j.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return tw.Flush()
		},
	}
}

func newJobsShowCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's test results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := st.client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job: %s\nStatus: %s\n", job.ID, job.Status)
			if job.ErrorText != "" {
				fmt.Fprintf(out, "Error: %s\n", job.ErrorText)
			}

			if len(job.Results) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "QUALIFIED_NAME\tPASSED\tDURATION(s)\tTOKENS\tERROR_TYPE")
			for _, r := range job.Results {
				fmt.Fprintf(tw, "%s\t%t\t%.2f\t%d\t%s\n", r.QualifiedName, r.Passed, r.DurationSeconds, r.TotalTokens, r.ErrorType)
			}
			return tw.Flush()
		},
	}
}
