package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/release-mirror/internal/config"
	"github.com/oshokin/release-mirror/internal/service/updater"
	"github.com/oshokin/release-mirror/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// downloadDirectory overrides the mirror root.
	downloadDirectory string
	// concurrency overrides the upstream request ceiling.
	concurrency int

	// rootCmd represents the base command for a single sync pass.
	rootCmd = &cobra.Command{
		Use:   "mirror-sync [owner/name]",
		Short: "Run one sync pass of the release mirror.",
		Long: `Downloads every upstream release missing locally, then publishes the
latest, <major> and <major>.<minor> tracking directories and updates
meta/metadata.json. The repository argument overrides the configuration.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &updater.Options{
				ConfigPath:        configPath,
				DownloadDirectory: downloadDirectory,
				Concurrency:       concurrency,
			}

			if len(args) > 0 {
				options.Repository = args[0]
			}

			_, err := updater.Run(ctx, options)

			return err
		},
	}
)

// Execute runs the mirror-sync CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Flags shared by every subcommand.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&downloadDirectory, "download-directory", "d", "", "mirror root, overrides the configuration")

	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum simultaneous upstream requests")

	rootCmd.AddCommand(verifyCmd, pruneCmd, healthCmd)
}
