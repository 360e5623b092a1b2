//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/oshokin/release-mirror/internal/config"
	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/github"
	"github.com/oshokin/release-mirror/internal/logger"
	"github.com/oshokin/release-mirror/internal/repository/metadata"
	"github.com/oshokin/release-mirror/internal/retry"
	"github.com/oshokin/release-mirror/internal/service/downloader"
	"github.com/oshokin/release-mirror/internal/service/mirror"
	"github.com/oshokin/release-mirror/internal/tracking"
	"github.com/oshokin/release-mirror/internal/version"
)

// errBadLogLevel is returned for log levels ParseLogLevel does not know.
var errBadLogLevel = errors.New("unknown log level")

// LoadSettings reads the configuration at path, applies the overrides and
// sets the global log level from the result.
func LoadSettings(path string, overrides ...func(*config.Config)) (*config.Config, error) {
	settings, err := config.Load(path, overrides...)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	level, ok := logger.ParseLogLevel(settings.LogLevel)
	if !ok {
		return nil, fmt.Errorf("%q: %w", settings.LogLevel, errBadLogLevel)
	}

	logger.SetLevel(level)

	return settings, nil
}

// Stack is the set of components a sync pass runs on.
type Stack struct {
	// Settings are the validated settings the stack was built from.
	Settings *config.Config
	// Root is the mirror root directory.
	Root string
	// Client talks to the upstream release API.
	Client *github.Client
	// Policy retries upstream calls and counts retries.
	Policy *retry.Policy
	// Publisher swaps tracking directories.
	Publisher *tracking.Publisher
	// Metadata stores the metadata record.
	Metadata *metadata.FileRepository
	// Mirror runs sync passes.
	Mirror *mirror.Service
}

// NewStack wires the mirror components on the local filesystem.
func NewStack(settings *config.Config) (*Stack, error) {
	client, err := github.NewClient(github.Options{
		BaseURL:   settings.APIBaseURL,
		MaxConns:  settings.Concurrency,
		Timeout:   settings.Timeout,
		CAFile:    settings.CAFile,
		UserAgent: version.UserAgent(),
	})
	if err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	var (
		fs        = &afero.OsFs{}
		root      = filepath.Clean(settings.DownloadDirectory)
		policy    = retry.NewPolicy(settings.MaxRetries, settings.RetryBaseDelay)
		pipeline  = downloader.New(client, fs, root, policy, settings.Concurrency)
		publisher = tracking.NewPublisher(fs, root, release.NewStripper(settings.StripPrefixes...))
		repo      = metadata.NewFileRepository(fs, metadata.Path(root))
	)

	return &Stack{
		Settings:  settings,
		Root:      root,
		Client:    client,
		Policy:    policy,
		Publisher: publisher,
		Metadata:  repo,
		Mirror: mirror.New(pipeline, publisher, repo, mirror.Options{
			Repository:      settings.Repository,
			SkipPrereleases: settings.SkipPrereleases,
		}),
	}, nil
}

// Close releases idle upstream connections.
func (s *Stack) Close() {
	s.Client.Close()
}
