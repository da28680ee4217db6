package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List tools available to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := st.client.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(tools, func(i, j int) bool {
				return strings.ToLower(tools[i].Name) < strings.ToLower(tools[j].Name)
			})

			out := cmd.OutOrStdout()
			if len(tools) == 0 {
				fmt.Fprintln(out, "No tools registered.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tGROUP\tPARAMS\tDESCRIPTION")
			for _, t := range tools {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.Name, t.Group, t.ParameterCount, t.Description)
			}
			return tw.Flush()
		},
	}
}
