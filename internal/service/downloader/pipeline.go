package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/logger"
	"github.com/oshokin/release-mirror/internal/retry"
)

const (
	// DefaultDirMode is used for Generation and staging directories.
	DefaultDirMode os.FileMode = 0o755
	// DefaultFileMode is used for downloaded assets.
	DefaultFileMode os.FileMode = 0o644
)

var errDuplicateAsset = errors.New("duplicate asset file name")

// Upstream is the release API as seen by the pipeline. Each call is a single attempt.
type Upstream interface {
	ListReleases(ctx context.Context, repo string) ([]release.Release, error)
	ListAssets(ctx context.Context, assetsURL string) ([]release.Asset, error)
	Download(ctx context.Context, downloadURL string, w io.Writer) error
}

// Report describes what a pass did.
type Report struct {
	// Releases are the releases listed upstream, in API order.
	Releases []release.Release
	// Versions are the parsed versions of Releases, index for index.
	Versions []release.Version
	// Downloaded are the versions fetched in this pass.
	Downloaded []string
	// Skipped are the versions whose Generation already existed.
	Skipped []string
}

// Pipeline downloads missing releases.
type Pipeline struct {
	upstream Upstream
	fs       afero.Fs
	root     string
	policy   *retry.Policy
	sem      *semaphore.Weighted
}

// New creates a Pipeline writing under root with at most concurrency upstream calls in flight.
func New(upstream Upstream, fs afero.Fs, root string, policy *retry.Policy, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Pipeline{
		upstream: upstream,
		fs:       fs,
		root:     filepath.Clean(root),
		policy:   policy,
		sem:      semaphore.NewWeighted(int64(concurrency)),
	}
}

// Run lists the releases of repo and downloads the ones missing on disk.
// Every tag is parsed before anything is written, so a bad tag fails the pass early.
func (p *Pipeline) Run(ctx context.Context, repo string) (*Report, error) {
	ctx = logger.WithName(ctx, "downloader")

	var releases []release.Release

	err := p.call(ctx, func(ctx context.Context) error {
		var err error

		releases, err = p.upstream.ListReleases(ctx, repo)

		return err
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		Releases: releases,
		Versions: make([]release.Version, 0, len(releases)),
	}

	for _, r := range releases {
		v, err := release.ParseVersion(r.Tag)
		if err != nil {
			return nil, fmt.Errorf("release %q: %w", r.Tag, err)
		}

		report.Versions = append(report.Versions, v)
	}

	if err = p.fs.MkdirAll(p.root, DefaultDirMode); err != nil {
		return nil, fmt.Errorf("create mirror root: %w", err)
	}

	type pending struct {
		release release.Release
		version release.Version
	}

	var (
		queue = make([]pending, 0, len(releases))
		seen  = make(map[string]struct{}, len(releases))
	)

	for i, r := range releases {
		v := report.Versions[i]

		if _, dup := seen[v.Full]; dup {
			continue
		}

		seen[v.Full] = struct{}{}

		exists, err := afero.DirExists(p.fs, release.GenerationDir(p.root, v))
		if err != nil {
			return nil, fmt.Errorf("stat generation %s: %w", v.Full, err)
		}

		if exists {
			logger.DebugKV(ctx, "Skipping existing release", "version", v.Full)
			report.Skipped = append(report.Skipped, v.Full)

			continue
		}

		queue = append(queue, pending{release: r, version: v})
	}

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)

	for _, item := range queue {
		group.Go(func() error {
			created, err := p.fetchRelease(groupCtx, item.release, item.version)
			if err != nil {
				return fmt.Errorf("release %s: %w", item.version.Full, err)
			}

			mu.Lock()
			defer mu.Unlock()

			if created {
				report.Downloaded = append(report.Downloaded, item.version.Full)
			} else {
				report.Skipped = append(report.Skipped, item.version.Full)
			}

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(report.Downloaded)
	sort.Strings(report.Skipped)

	if len(report.Downloaded) == 0 {
		logger.Info(ctx, "No new releases found")
	}

	return report, nil
}

// fetchRelease downloads every asset of r into staging and renames it to the Generation path.
// It returns false when another pass published the Generation first.
func (p *Pipeline) fetchRelease(ctx context.Context, r release.Release, v release.Version) (bool, error) {
	ctx = logger.WithKV(ctx, "version", v.Full)

	var assets []release.Asset

	err := p.call(ctx, func(ctx context.Context) error {
		var err error

		assets, err = p.upstream.ListAssets(ctx, r.AssetsURL)

		return err
	})
	if err != nil {
		return false, err
	}

	names := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if _, dup := names[a.FileName]; dup {
			return false, fmt.Errorf("%s: %w", a.FileName, errDuplicateAsset)
		}

		names[a.FileName] = struct{}{}
	}

	staging := filepath.Join(p.root, release.StagingPrefix+uuid.NewString())
	if err = p.fs.MkdirAll(staging, DefaultDirMode); err != nil {
		return false, fmt.Errorf("create staging directory: %w", err)
	}

	published := false

	defer func() {
		if published {
			return
		}

		if err := p.fs.RemoveAll(staging); err != nil {
			logger.WarnKV(ctx, "Unable to remove staging directory", "path", staging, "error", err)
		}
	}()

	logger.InfoKV(ctx, "Installing assets", "assets", len(assets))

	group, groupCtx := errgroup.WithContext(ctx)
	for _, a := range assets {
		group.Go(func() error {
			return p.fetchAsset(groupCtx, a, staging)
		})
	}

	if err = group.Wait(); err != nil {
		return false, err
	}

	target := release.GenerationDir(p.root, v)

	if exists, _ := afero.DirExists(p.fs, target); exists {
		logger.Info(ctx, "Release was published by another pass")
		return false, nil
	}

	if err = p.fs.Rename(staging, target); err != nil {
		if exists, _ := afero.DirExists(p.fs, target); exists {
			return false, nil
		}

		return false, fmt.Errorf("publish generation: %w", err)
	}

	published = true

	logger.InfoKV(ctx, "Release downloaded", "path", target)

	return true, nil
}

// fetchAsset downloads a into dir, recreating the file on every attempt.
func (p *Pipeline) fetchAsset(ctx context.Context, a release.Asset, dir string) error {
	path := filepath.Join(dir, a.FileName)

	err := p.call(ctx, func(ctx context.Context) error {
		f, err := p.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, DefaultFileMode)
		if err != nil {
			return retry.Permanent(fmt.Errorf("create %s: %w", a.FileName, err))
		}

		if err = p.upstream.Download(ctx, a.DownloadURL, f); err != nil {
			_ = f.Close()
			return err
		}

		return f.Close()
	})
	if err != nil {
		return fmt.Errorf("asset %s: %w", a.FileName, err)
	}

	logger.DebugKV(ctx, "Downloaded file", "file", a.FileName)

	return nil
}

// call runs op under the retry policy, holding a concurrency slot only while the request is in flight.
func (p *Pipeline) call(ctx context.Context, op retry.Operation) error {
	return p.policy.Do(ctx, func(ctx context.Context) error {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return retry.Permanent(err)
		}
		defer p.sem.Release(1)

		return op(ctx)
	})
}
