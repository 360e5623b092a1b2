package updater

import (
	"context"
	"fmt"

	"github.com/oshokin/release-mirror/internal/config"
	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/logger"
	"github.com/oshokin/release-mirror/internal/service/common"
	"github.com/oshokin/release-mirror/internal/service/mirror"
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// Repository overrides the upstream "owner/name" from the configuration.
	Repository string
	// DownloadDirectory overrides the mirror root from the configuration.
	DownloadDirectory string
	// Concurrency overrides the ceiling on simultaneous upstream requests.
	Concurrency int
}

// Run executes one sync pass and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) (*mirror.Result, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "mirror-sync")

	// Load settings, letting command line values win over file and environment.
	settings, err := common.LoadSettings(opts.ConfigPath, opts.apply)
	if err != nil {
		return nil, err
	}

	// Assemble the upstream client, pipeline, publisher and metadata store.
	stack, err := common.NewStack(settings)
	if err != nil {
		return nil, err
	}
	defer stack.Close()

	logger.InfoKV(ctx, "Starting sync pass",
		"repository", settings.Repository,
		"download_directory", stack.Root,
		"concurrency", settings.Concurrency)

	result, err := stack.Mirror.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", settings.Repository, err)
	}

	stats := stack.Policy.Stats()

	logger.InfoKV(ctx, "Mirror is up to date",
		"latest", latestOf(result),
		"downloaded", result.Downloaded,
		"published", result.Published,
		"retries", stats.Retries.Load(),
		"rate_limit_waits", stats.RateLimitWaits.Load())

	return result, nil
}

// apply copies the non-empty overrides into cfg.
func (o *Options) apply(cfg *config.Config) {
	if o.Repository != "" {
		cfg.Repository = o.Repository
	}

	if o.DownloadDirectory != "" {
		cfg.DownloadDirectory = o.DownloadDirectory
	}

	if o.Concurrency > 0 {
		cfg.Concurrency = o.Concurrency
	}
}

func latestOf(result *mirror.Result) string {
	if v, ok := result.Mapping[release.LatestLabel]; ok {
		return v.Full
	}

	return ""
}
