package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const defaultServerAddr = "http://localhost:8080"

type cliState struct {
	serverAddr string
	apiKey     string
	client     *apiClient
}

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{serverAddr: defaultServerAddr}
	if v := os.Getenv("AGENTDECK_SERVER_ADDR"); v != "" {
		st.serverAddr = v
	}
	st.apiKey = os.Getenv("AGENTDECK_API_KEY")

	root := &cobra.Command{
		Use:           "agentdeckctl",
		Short:         "Operate an agentdeck test-orchestration server",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			st.client = newAPIClient(st.serverAddr, st.apiKey)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&st.serverAddr, "server", st.serverAddr, "agentdeck server base URL")
	root.PersistentFlags().StringVar(&st.apiKey, "api-key", st.apiKey, "key sent as X-API-Key to the server's API-key gate")

	root.AddCommand(newTestsCmd(st))
	root.AddCommand(newRunCmd(st))
	root.AddCommand(newJobsCmd(st))
	root.AddCommand(newHistoryCmd(st))
	root.AddCommand(newToolsCmd(st))
	root.AddCommand(newLedgerCmd(st))
	return root
}
