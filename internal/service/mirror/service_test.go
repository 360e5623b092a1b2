package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/repository/metadata"
	"github.com/oshokin/release-mirror/internal/service/downloader"
	"github.com/oshokin/release-mirror/internal/tracking"
)

var (
	errTestDownload = errors.New("test download error")
	errTestPublish  = errors.New("test publish error")
)

// diskDownloader writes one asset per tag straight into its Generation directory.
type diskDownloader struct {
	// root is the mirror root Generations are written to.
	root string
	// tags are the upstream release tags.
	tags []string
	// err is returned instead of a report when set.
	err error
	// calls counts Run invocations.
	calls int
}

func (d *diskDownloader) Run(_ context.Context, _ string) (*downloader.Report, error) {
	d.calls++

	if d.err != nil {
		return nil, d.err
	}

	report := new(downloader.Report)

	for _, tag := range d.tags {
		v, err := release.ParseVersion(tag)
		if err != nil {
			return nil, err
		}

		report.Versions = append(report.Versions, v)

		dir := release.GenerationDir(d.root, v)
		if _, err = os.Stat(dir); err == nil {
			report.Skipped = append(report.Skipped, v.Full)

			continue
		}

		if err = os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}

		name := "app-" + v.Full + ".tar.gz"
		if err = os.WriteFile(filepath.Join(dir, name), []byte(v.Full), 0o644); err != nil {
			return nil, err
		}

		report.Downloaded = append(report.Downloaded, v.Full)
	}

	return report, nil
}

// failingPublisher fails every publication.
type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, release.Version) error {
	return errTestPublish
}

func (failingPublisher) Current(string) (string, bool, error) {
	return "", false, nil
}

type fixture struct {
	root       string
	downloader *diskDownloader
	metadata   *metadata.FileRepository
	service    *Service
}

func newFixture(t *testing.T, tags []string, opts Options) *fixture {
	t.Helper()

	root := t.TempDir()
	fs := &afero.OsFs{}

	f := &fixture{
		root:       root,
		downloader: &diskDownloader{root: root, tags: tags},
		metadata:   metadata.NewFileRepository(fs, metadata.Path(root)),
	}

	opts.Repository = "acme/app"
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	}

	publisher := tracking.NewPublisher(fs, root, release.NewStripper("app"))
	f.service = New(f.downloader, publisher, f.metadata, opts)

	return f
}

func readTracked(t *testing.T, root, label string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, label, "app.tar.gz"))
	require.NoError(t, err)

	return string(data)
}

// TestSync_PublishesEveryLabel runs a full pass on a fresh mirror.
func TestSync_PublishesEveryLabel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"v2.1.0", "v2.0.5", "v1.9.0", "v2.0.9"}, Options{})

	result, err := f.service.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"latest", "2", "2.1", "2.0", "1", "1.9"}, result.Published)
	require.Empty(t, result.Unchanged)
	require.Len(t, result.Downloaded, 4)

	require.Equal(t, "2.1.0", readTracked(t, f.root, "latest"))
	require.Equal(t, "2.1.0", readTracked(t, f.root, "2"))
	require.Equal(t, "2.0.9", readTracked(t, f.root, "2.0"))
	require.Equal(t, "1.9.0", readTracked(t, f.root, "1"))

	document, err := f.metadata.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2024-05-01T10:00:00Z", document[metadata.KeyLastUpdated])
	require.Equal(t, map[string]any{
		"latest": "2.1.0",
		"2":      "2.1.0",
		"2.1":    "2.1.0",
		"2.0":    "2.0.9",
		"1":      "1.9.0",
		"1.9":    "1.9.0",
	}, document[metadata.KeyTrackingDirectories])

	status := f.service.LastStatus()
	require.NoError(t, status.Err)
	require.Same(t, result, status.Result)
}

// TestSync_SecondPassChangesNothing leaves every tracking link in place.
func TestSync_SecondPassChangesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"v1.0.0", "v1.1.0"}, Options{})
	ctx := context.Background()

	_, err := f.service.Sync(ctx)
	require.NoError(t, err)

	before, err := os.Readlink(filepath.Join(f.root, "latest"))
	require.NoError(t, err)

	result, err := f.service.Sync(ctx)
	require.NoError(t, err)
	require.Empty(t, result.Published)
	require.ElementsMatch(t, []string{"latest", "1", "1.1", "1.0"}, result.Unchanged)
	require.ElementsMatch(t, []string{"1.0.0", "1.1.0"}, result.Skipped)

	after, err := os.Readlink(filepath.Join(f.root, "latest"))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

// TestSync_NewReleaseMovesOnlyAffectedLabels publishes a patch release between passes.
func TestSync_NewReleaseMovesOnlyAffectedLabels(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"v1.0.0", "v2.0.0"}, Options{})
	ctx := context.Background()

	_, err := f.service.Sync(ctx)
	require.NoError(t, err)

	f.downloader.tags = append(f.downloader.tags, "v1.0.1")

	result, err := f.service.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "1.0"}, result.Published)
	require.Equal(t, "1.0.1", readTracked(t, f.root, "1.0"))
	require.Equal(t, "2.0.0", readTracked(t, f.root, "latest"))
}

// TestSync_SkipPrereleases keeps prereleases out of the tracking directories.
func TestSync_SkipPrereleases(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"v1.0.0", "v1.1.0-rc.1"}, Options{SkipPrereleases: true})

	result, err := f.service.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.0.0", result.Mapping[release.LatestLabel].Full)
	require.Equal(t, "1.0.0", readTracked(t, f.root, "latest"))

	// The prerelease Generation is still mirrored.
	require.DirExists(t, filepath.Join(f.root, "1.1.0-rc.1"))
}

// TestSync_IncludesPrereleasesByDefault lets a prerelease win when it is the highest version.
func TestSync_IncludesPrereleasesByDefault(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"v1.0.0", "v1.1.0-rc.1"}, Options{})

	result, err := f.service.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.1.0-rc.1", result.Mapping[release.LatestLabel].Full)
}

// TestSync_EmptyUpstream records an empty mapping without publishing anything.
func TestSync_EmptyUpstream(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Options{})

	result, err := f.service.Sync(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Mapping)
	require.Empty(t, result.Published)

	document, err := f.metadata.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]any{}, document[metadata.KeyTrackingDirectories])
}

// TestSync_DownloadFailure aborts before publishing and keeps the previous status result.
func TestSync_DownloadFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []string{"v1.0.0"}, Options{})
	ctx := context.Background()

	first, err := f.service.Sync(ctx)
	require.NoError(t, err)

	f.downloader.err = errTestDownload

	_, err = f.service.Sync(ctx)
	require.ErrorIs(t, err, errTestDownload)

	status := f.service.LastStatus()
	require.ErrorIs(t, status.Err, errTestDownload)
	require.Same(t, first, status.Result)
}

// TestSync_PublishFailureSkipsMetadata never records a mapping that was not published.
func TestSync_PublishFailureSkipsMetadata(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	repo := metadata.NewFileRepository(&afero.OsFs{}, metadata.Path(root))
	svc := New(&diskDownloader{root: root, tags: []string{"v1.0.0"}}, failingPublisher{}, repo, Options{})

	_, err := svc.Sync(context.Background())
	require.ErrorIs(t, err, errTestPublish)
	require.ErrorContains(t, err, "publish latest -> 1.0.0")

	document, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, document)
}
