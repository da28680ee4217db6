package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agentdeck/internal/domain"
)

var errRunFailed = errors.New("agentdeck: run failed")

type runOptions struct {
	tests []string
	watch bool
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger a test run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTriggerRun(cmd, st, &opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.tests, "test", nil, "qualified test name to run (repeatable; omit to run all)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "tail job status until it finishes")
	return cmd
}

func runTriggerRun(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	job, err := st.client.CreateRun(cmd.Context(), opts.tests)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job %s created (%s)\n", job.ID, job.Status)
	if !opts.watch {
		return nil
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	final, err := watchJob(ctx, st, job.ID, out)
	if err != nil {
		return err
	}
	if final != nil && final.Status == domain.JobFailed {
		return errRunFailed
	}
	return nil
}

// watchJob dials /testing/ws/runs and prints status transitions for jobID
// until the job reaches a terminal status or ctx is cancelled, then returns
// the last known state of the job.
func watchJob(ctx context.Context, st *cliState, jobID string, out io.Writer) (*domain.Job, error) {
	wsURL, err := wsURLFor(st.serverAddr, "/testing/ws/runs")
	if err != nil {
		return nil, err
	}

	header := make(map[string][]string)
	if st.apiKey != "" {
		header["X-API-Key"] = []string{st.apiKey}
	}

	conn, _, err := (&websocket.Dialer{}).DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("agentdeck: connect runs stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	var last domain.JobStatus
	for {
		var msg struct {
			Type string      `json:"type"`
			Jobs []*domain.Job `json:"jobs,omitempty"`
			Job  *domain.Job   `json:"job,omitempty"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("agentdeck: runs stream: %w", err)
		}

		jobs := msg.Jobs
		if msg.Job != nil {
			jobs = append(jobs, msg.Job)
		}
		for _, j := range jobs {
			if j == nil || j.ID != jobID {
				continue
			}
			if j.Status != last {
				fmt.Fprintf(out, "job %s: %s\n", j.ID, j.Status)
				last = j.Status
			}
			if j.Status == domain.JobSucceeded || j.Status == domain.JobFailed {
				return j, nil
			}
		}
	}
}

func wsURLFor(serverAddr, path string) (string, error) {
	u, err := url.Parse(serverAddr)
	if err != nil {
		return "", fmt.Errorf("agentdeck: invalid server address %q: %w", serverAddr, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
