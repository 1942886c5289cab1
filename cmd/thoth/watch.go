package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jbweber/thoth/internal/output"
	"github.com/jbweber/thoth/internal/remote"
	"github.com/jbweber/thoth/internal/telemetry"
)

var watchCount int

var watchCmd = &cobra.Command{
	Use:   "watch <vm-name>",
	Short: "Stream live telemetry for a VM",
	Long: `Focus a VM and print one row per telemetry sample until interrupted.

Samples are taken every telemetry.period (default 3s). A VM that is not
running is sampled as soon as it starts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ctx := cmd.Context()

		var (
			mu      sync.Mutex
			printed int
			header  = !noHeaders
		)
		done := make(chan struct{})
		onSample := func(resourceID string, s telemetry.Sample) {
			mu.Lock()
			defer mu.Unlock()
			if resourceID != name || (watchCount > 0 && printed >= watchCount) {
				return
			}
			text, err := (&output.TableFormatter{NoHeaders: !header}).FormatSamples([]telemetry.Sample{s})
			if err != nil {
				return
			}
			header = false
			fmt.Print(text)
			printed++
			if watchCount > 0 && printed == watchCount {
				close(done)
			}
		}

		return withBackend(ctx, func(client remote.Client) error {
			c := newController(client, onSample)
			defer c.Close()

			if err := c.Focus(ctx, name); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
			case <-done:
			}
			return nil
		})
	},
}

func init() {
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "stop after this many samples (0 runs until interrupted)")
}
