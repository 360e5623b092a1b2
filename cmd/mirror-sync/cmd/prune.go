package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/release-mirror/internal/service/pruner"
)

// minAge keeps leftovers younger than this.
var minAge time.Duration

// pruneCmd removes leftovers of interrupted passes.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove leftovers of interrupted sync passes.",
	Long: `Removes scratch trees no tracking directory points at, abandoned staging
directories and temporary links. Entries younger than --min-age are kept so
a pass running at the same time is not disturbed.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		_, err := pruner.Run(ctx, &pruner.Options{
			ConfigPath:        configPath,
			DownloadDirectory: downloadDirectory,
			MinAge:            minAge,
		})

		return err
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	pruneCmd.Flags().DurationVar(&minAge, "min-age", pruner.DefaultMinAge, "keep leftovers younger than this")
}
