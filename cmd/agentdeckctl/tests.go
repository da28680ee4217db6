package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTestsCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "tests",
		Short: "List discovered test cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tests, err := st.client.ListTests(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(tests, func(i, j int) bool {
				return strings.ToLower(tests[i].QualifiedName) < strings.ToLower(tests[j].QualifiedName)
			})

			out := cmd.OutOrStdout()
			if len(tests) == 0 {
				fmt.Fprintln(out, "No tests discovered.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "QUALIFIED_NAME\tMODULE\tNAME\tDOCSTRING")
			for _, td := range tests {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", td.QualifiedName, td.Module, td.Name, td.Docstring)
			}
			return tw.Flush()
		},
	}
}
