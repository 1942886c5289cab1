package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/thoth/internal/config"
	"github.com/jbweber/thoth/internal/logger"
	"github.com/jbweber/thoth/internal/output"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Flags and state shared by every subcommand.
var (
	configPath   string
	outputFormat string
	noHeaders    bool
	logLevel     string

	cfg *config.Config
	log *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "thoth",
	Short: "Thoth - libvirt VM lifecycle tool",
	Long: `Thoth manages libvirt virtual machines, either directly over the local
libvirt socket or through a thoth REST server.

It lists and inspects VMs, drives their lifecycle, manages snapshots and
clones, provisions new VMs from cloud images, and streams live telemetry.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		cfg = loaded
		log = logger.New(cfg.Logging.Level, logger.ParseFormat(cfg.Logging.Format))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("THOTH_CONFIG"), "path to the thoth config file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(output.FormatTable), "output format: table, yaml or json")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false, "omit table headers")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(ipCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(systemCmd)
	rootCmd.AddCommand(imageCmd)
	for _, c := range lifecycleCmds() {
		rootCmd.AddCommand(c)
	}
}

func newFormatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}

// render formats with fn and prints the result.
func render(fn func(f output.Formatter) (string, error)) error {
	f, err := newFormatter()
	if err != nil {
		return err
	}
	result, err := fn(f)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(result)
	return nil
}
