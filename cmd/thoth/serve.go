package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/thoth/internal/api"
	"github.com/jbweber/thoth/internal/config"
	"github.com/jbweber/thoth/internal/metrics"
)

var (
	serveListen        string
	serveMetricsListen string
	serveDebug         bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API over the local libvirt daemon",
	Long: `Run the thoth REST server. Other thoth clients reach it with
backend.mode: http and backend.url pointing here.

The server always talks to the local libvirt socket, whatever backend.mode
says. /healthz and /metrics are served next to the API. --metrics-listen
additionally serves /metrics on a separate address.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("listen") {
			cfg.Server.Listen = serveListen
		}
		if cmd.Flags().Changed("debug") {
			cfg.Server.Debug = serveDebug
		}
		if cfg.Backend.Mode != config.ModeLibvirt {
			log.Sugar().Infow("serve always uses the local libvirt backend", "configured", cfg.Backend.Mode)
		}

		b, _, err := openLibvirt(ctx)
		if err != nil {
			return err
		}
		defer b.close()

		if serveMetricsListen != "" {
			msrv := metrics.SetupMetricsEndpoint(serveMetricsListen, log.Sugar().Named("metrics"))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = msrv.Shutdown(shutdownCtx)
			}()
		}

		provCfg := cfg.ProvisionConfig()
		provCfg.Logger = log.Sugar().Named("provision")
		srv := api.NewServer(b.Client, api.ServerConfig{
			Logger:      log.Named("api"),
			Debug:       cfg.Server.Debug,
			CallTimeout: cfg.Server.CallTimeout,
			Provision:   provCfg,
		})
		if err := srv.ListenAndServe(ctx, cfg.Server.Listen); err != nil {
			return fmt.Errorf("REST server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", config.DefaultListen, "address to serve the API on")
	serveCmd.Flags().StringVar(&serveMetricsListen, "metrics-listen", "", "separate address for /metrics")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "run gin in debug mode")
}
