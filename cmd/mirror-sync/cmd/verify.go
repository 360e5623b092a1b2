package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/release-mirror/internal/service/checker"
)

// verifyCmd re-hashes mirrored files against their manifests.
var verifyCmd = &cobra.Command{
	Use:   "verify [version|label...]",
	Short: "Verify mirrored files against their checksum manifests.",
	Long: `Re-hashes the files of the named Generations or tracking directories and
compares them with checksums.txt. Without arguments every directory of the
mirror root is verified. Exits non-zero when a file is missing or damaged.`,
	SilenceUsage: true,
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		_, err := checker.Run(ctx, &checker.Options{
			ConfigPath:        configPath,
			DownloadDirectory: downloadDirectory,
			Targets:           args,
		})

		return err
	},
}
