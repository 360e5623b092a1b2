package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/release-mirror/internal/config"
	"github.com/oshokin/release-mirror/internal/service/server"
	"github.com/oshokin/release-mirror/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// healthAddress where the gRPC health service listens.
	healthAddress string

	// rootCmd represents the base command for running the mirror server.
	rootCmd = &cobra.Command{
		Use:   "mirror-server [listen-address]",
		Short: "Keep a local mirror of upstream releases up to date.",
		Long: `Starts the mirror server that downloads upstream releases and publishes
the latest, <major> and <major>.<minor> tracking directories.

A sync pass runs at start-up and then every sync_interval.
POST /api/hooks/release-download-toggle runs a pass on demand and
GET /api/status reports the outcome of the last one.
Listen address can be provided as argument to override config (e.g., :9090, 0.0.0.0:8000).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				HealthAddress: healthAddress,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the mirror-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&healthAddress, "health-address", "", "address of the gRPC health endpoint")
}
