// Package pruner removes leftovers of interrupted sync passes from a mirror root.
package pruner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/oshokin/release-mirror/internal/config"
	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/logger"
	"github.com/oshokin/release-mirror/internal/service/common"
	"github.com/oshokin/release-mirror/internal/tracking"
)

// DefaultMinAge keeps entries a pass in progress may still be writing.
const DefaultMinAge = time.Hour

// Options configures a prune run.
type Options struct {
	// ConfigPath to YAML settings file.
	ConfigPath string
	// DownloadDirectory overrides the mirror root from the configuration.
	DownloadDirectory string
	// MinAge is the age below which leftovers are kept.
	MinAge time.Duration
}

// Run removes unreferenced scratch trees, staging directories and temporary links.
func Run(ctx context.Context, opts *Options) ([]string, error) {
	ctx = logger.WithName(ctx, "mirror-prune")

	settings, err := common.LoadSettings(opts.ConfigPath, func(cfg *config.Config) {
		if opts.DownloadDirectory != "" {
			cfg.DownloadDirectory = opts.DownloadDirectory
		}
	})
	if err != nil {
		return nil, err
	}

	minAge := opts.MinAge
	if minAge < 0 {
		minAge = DefaultMinAge
	}

	root := filepath.Clean(settings.DownloadDirectory)
	publisher := tracking.NewPublisher(&afero.OsFs{}, root, release.NewStripper(settings.StripPrefixes...))

	removed, err := publisher.Sweep(ctx, minAge)
	if err != nil {
		return removed, fmt.Errorf("prune %s: %w", root, err)
	}

	logger.InfoKV(ctx, "Prune finished", "removed", len(removed), "min_age", minAge)

	return removed, nil
}
