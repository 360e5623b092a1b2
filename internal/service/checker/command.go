package checker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/oshokin/release-mirror/internal/checksum"
	"github.com/oshokin/release-mirror/internal/config"
	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/logger"
	"github.com/oshokin/release-mirror/internal/service/common"
)

// Options controls which directories are verified.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// DownloadDirectory overrides the mirror root from the configuration.
	DownloadDirectory string
	// Targets are Generation versions or tracking labels to verify. Empty means everything.
	Targets []string
}

// Summary is the outcome of a verification run.
type Summary struct {
	// Reports maps every verified directory name to its report.
	Reports map[string]*checksum.Report
	// WithoutManifest lists directories that carry no checksum manifest.
	WithoutManifest []string
}

// ErrVerificationFailed is returned when any file is missing or does not match its checksum.
var ErrVerificationFailed = errors.New("verification failed")

// Run verifies the requested directories and fails if any of them is damaged.
func Run(ctx context.Context, opts *Options) (*Summary, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "mirror-verify")

	// Load settings from configuration file.
	settings, err := common.LoadSettings(opts.ConfigPath, func(cfg *config.Config) {
		if opts.DownloadDirectory != "" {
			cfg.DownloadDirectory = opts.DownloadDirectory
		}
	})
	if err != nil {
		return nil, err
	}

	return Verify(ctx, afero.NewOsFs(), filepath.Clean(settings.DownloadDirectory), opts.Targets)
}

// Verify checks the named directories under root, or every Generation and
// tracking directory when targets is empty.
func Verify(ctx context.Context, fs afero.Fs, root string, targets []string) (*Summary, error) {
	if len(targets) == 0 {
		var err error

		if targets, err = listTargets(fs, root); err != nil {
			return nil, err
		}
	}

	summary := &Summary{
		Reports: make(map[string]*checksum.Report, len(targets)),
	}

	failed := 0

	for _, name := range targets {
		report, err := checksum.Verify(fs, filepath.Join(root, name))

		switch {
		case errors.Is(err, os.ErrNotExist):
			summary.WithoutManifest = append(summary.WithoutManifest, name)
			logger.WarnKV(ctx, "No checksum manifest", "directory", name)

			continue
		case err != nil:
			return nil, fmt.Errorf("verify %s: %w", name, err)
		}

		summary.Reports[name] = report

		if !report.OK() {
			failed++

			logger.ErrorKV(ctx, "Directory is damaged",
				"directory", name,
				"mismatched", report.Mismatched,
				"missing", report.Missing)

			continue
		}

		logger.DebugKV(ctx, "Directory verified", "directory", name, "files", len(report.Verified))
	}

	logger.InfoKV(ctx, "Verification finished",
		"directories", len(summary.Reports),
		"damaged", failed,
		"without_manifest", len(summary.WithoutManifest))

	if failed > 0 {
		return summary, fmt.Errorf("%d of %d directories: %w", failed, len(summary.Reports), ErrVerificationFailed)
	}

	return summary, nil
}

// listTargets returns every public entry of root except the meta directory.
func listTargets(fs afero.Fs, root string) ([]string, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, fmt.Errorf("read mirror root: %w", err)
	}

	targets := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if release.IsPrivateName(name) || name == release.MetaDirectory {
			continue
		}

		if entry.IsDir() || entry.Mode()&os.ModeSymlink != 0 {
			targets = append(targets, name)
		}
	}

	sort.Strings(targets)

	return targets, nil
}
