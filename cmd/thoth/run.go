package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/thoth/internal/api"
	"github.com/jbweber/thoth/internal/config"
	"github.com/jbweber/thoth/internal/output"
	"github.com/jbweber/thoth/internal/provision"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Inspect provisioning runs held by a thoth server",
	Long: `List, inspect and dismiss provisioning runs submitted with
'thoth deploy --detach'.

The server keeps finished runs for provisioning.retention. A finished run
blocks new submissions until its grace period ends or it is dismissed.

These commands require backend.mode: http.`,
}

func init() {
	runCmd.AddCommand(runListCmd)
	runCmd.AddCommand(runGetCmd)
	runCmd.AddCommand(runDismissCmd)
}

// apiClient returns a client for the configured thoth server.
func apiClient() (*api.Client, error) {
	if cfg.Backend.Mode != config.ModeHTTP {
		return nil, fmt.Errorf("provisioning runs are held by a thoth server; set backend.mode to %s", config.ModeHTTP)
	}
	return api.NewClient(cfg.Backend.URL, api.WithLogger(log.Sugar().Named("api"))), nil
}

var runListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retained runs, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		runs, err := client.ListRuns(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		return render(func(f output.Formatter) (string, error) { return f.FormatRuns(runs) })
	},
}

var runGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show a run",
	Long: `Show a run. A finished run prints its outcome; a run in flight
prints its current phase.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		st, err := client.GetRun(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}
		if !st.Terminal() || outputFormat != string(output.FormatTable) {
			return render(func(f output.Formatter) (string, error) { return f.FormatRuns([]provision.RunStatus{*st}) })
		}
		return render(func(f output.Formatter) (string, error) { return f.FormatOutcome(outcomeFromStatus(st)) })
	},
}

var runDismissCmd = &cobra.Command{
	Use:   "dismiss <run-id>",
	Short: "Release a finished run before its grace period ends",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		if err := client.DismissRun(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to dismiss run: %w", err)
		}
		fmt.Printf("✓ Run %s dismissed\n", args[0])
		return nil
	},
}

// outcomeFromStatus rebuilds the outcome of a terminal run, restoring the
// errors that travel as text.
func outcomeFromStatus(st *provision.RunStatus) provision.Outcome {
	var out provision.Outcome
	if st.Outcome != nil {
		out = *st.Outcome
	}
	if out.Reconcile.ResourceName == "" {
		out.Reconcile.ResourceName = st.Hostname
	}
	if st.Reason != "" {
		out.Reason = errors.New(st.Reason)
	}
	if st.AddressError != "" {
		out.AddressErr = errors.New(st.AddressError)
	}
	return out
}
