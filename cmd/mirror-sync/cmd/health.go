package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/release-mirror/internal/service/client"
	"github.com/oshokin/release-mirror/internal/service/common"
)

var (
	// healthAddress overrides the configured health endpoint.
	healthAddress string
	// healthTimeout bounds the health call.
	healthTimeout time.Duration
)

// healthCmd queries a running mirror-server.
var healthCmd = &cobra.Command{
	Use:          "health",
	Short:        "Ask a running mirror-server whether its last pass succeeded.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return client.Run(ctx, &client.Options{
			ConfigPath:    configPath,
			HealthAddress: healthAddress,
			Timeout:       healthTimeout,
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	healthCmd.Flags().StringVar(&healthAddress, "address", "", "health endpoint, overrides health_address")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", common.DefaultCallTimeout, "timeout of the health call")
}
