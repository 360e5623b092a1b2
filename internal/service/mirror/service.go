package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/logger"
	"github.com/oshokin/release-mirror/internal/repository/metadata"
	"github.com/oshokin/release-mirror/internal/service/downloader"
)

// Downloader fetches every missing Generation of a repository.
type Downloader interface {
	Run(ctx context.Context, repo string) (*downloader.Report, error)
}

// Publisher exposes versions under tracking labels.
type Publisher interface {
	Publish(ctx context.Context, label string, v release.Version) error
	Current(label string) (string, bool, error)
}

// Options configures a Service.
type Options struct {
	// Repository is the upstream "owner/name".
	Repository string
	// SkipPrereleases keeps prerelease versions out of the tag mapping.
	SkipPrereleases bool
	// Now returns the pass completion time. Defaults to time.Now.
	Now func() time.Time
}

// Result describes a completed pass.
type Result struct {
	// Mapping is the tag mapping the pass resolved.
	Mapping release.TagMapping
	// Downloaded are the versions fetched in this pass.
	Downloaded []string
	// Skipped are the versions whose Generation already existed.
	Skipped []string
	// Published are the labels whose tracking directory changed.
	Published []string
	// Unchanged are the labels already pointing at the resolved version.
	Unchanged []string
	// FinishedAt is when the metadata record was updated.
	FinishedAt time.Time
}

// Status is the outcome of the most recent pass.
type Status struct {
	// Result is the last successful result, kept across failed passes.
	Result *Result
	// Err is the error of the last pass, nil when it succeeded.
	Err error
	// At is when the last pass ended.
	At time.Time
}

// Service orchestrates sync passes.
// Passes are not mutually excluded: callers that trigger passes concurrently
// rely on Generation renames and link swaps being atomic.
type Service struct {
	downloader Downloader
	publisher  Publisher
	metadata   metadata.Repository
	opts       Options

	// mu protects status.
	mu     sync.RWMutex
	status Status
}

// New creates a Service.
func New(d Downloader, p Publisher, m metadata.Repository, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		downloader: d,
		publisher:  p,
		metadata:   m,
		opts:       opts,
	}
}

// Sync runs one pass. Any error aborts the pass; Generations completed before the
// failure stay on disk and are reused by the next pass.
func (s *Service) Sync(ctx context.Context) (*Result, error) {
	ctx = logger.WithKV(logger.WithName(ctx, "mirror"), "repository", s.opts.Repository)

	result, err := s.sync(ctx)

	s.mu.Lock()
	s.status.Err = err
	s.status.At = s.opts.Now()

	if err == nil {
		s.status.Result = result
	}
	s.mu.Unlock()

	if err != nil {
		logger.ErrorKV(ctx, "Sync pass failed", "error", err)

		return nil, err
	}

	return result, nil
}

// LastStatus returns the outcome of the most recent pass.
func (s *Service) LastStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

func (s *Service) sync(ctx context.Context) (*Result, error) {
	report, err := s.downloader.Run(ctx, s.opts.Repository)
	if err != nil {
		return nil, fmt.Errorf("download releases: %w", err)
	}

	versions := make([]release.Version, 0, len(report.Versions))

	for _, v := range report.Versions {
		if s.opts.SkipPrereleases && v.IsPrerelease() {
			continue
		}

		versions = append(versions, v)
	}

	result := &Result{
		Mapping:    release.Resolve(versions),
		Downloaded: report.Downloaded,
		Skipped:    report.Skipped,
	}

	for _, label := range result.Mapping.Labels() {
		v := result.Mapping[label]

		current, ok, err := s.publisher.Current(label)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", label, err)
		}

		if ok && current == v.Full {
			result.Unchanged = append(result.Unchanged, label)

			continue
		}

		if err = s.publisher.Publish(ctx, label, v); err != nil {
			return nil, fmt.Errorf("publish %s -> %s: %w", label, v.Full, err)
		}

		result.Published = append(result.Published, label)
	}

	result.FinishedAt = s.opts.Now().UTC()

	err = s.metadata.Merge(ctx, map[string]any{
		metadata.KeyLastUpdated:         result.FinishedAt.Format(time.RFC3339),
		metadata.KeyTrackingDirectories: trackingDirectories(result.Mapping),
	})
	if err != nil {
		return nil, fmt.Errorf("update metadata: %w", err)
	}

	logger.InfoKV(ctx, "Sync pass finished",
		"downloaded", len(result.Downloaded),
		"skipped", len(result.Skipped),
		"published", result.Published,
		"unchanged", len(result.Unchanged))

	return result, nil
}

func trackingDirectories(mapping release.TagMapping) map[string]any {
	out := make(map[string]any, len(mapping))
	for label, v := range mapping {
		out[label] = v.Full
	}

	return out
}
