package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/release-mirror/internal/config"
	"github.com/oshokin/release-mirror/internal/repository/metadata"
	"github.com/oshokin/release-mirror/internal/service/checker"
	"github.com/oshokin/release-mirror/internal/service/updater"
)

// writeSettings saves a configuration pointing at upstream and returns its path and mirror root.
func writeSettings(t *testing.T, upstream *fakeUpstream, edit func(*config.Config)) (string, string) {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, "mirror")
	path := filepath.Join(dir, config.DefaultConfigFilename)

	cfg := &config.Config{
		Repository:        "acme/app",
		DownloadDirectory: root,
		APIBaseURL:        upstream.server.URL,
		Concurrency:       4,
		RetryBaseDelay:    10 * time.Millisecond,
		StripPrefixes:     []string{"app"},
	}

	if edit != nil {
		edit(cfg)
	}

	require.NoError(t, config.Save(path, cfg))

	return path, root
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

// TestSync_MirrorsAndTracksReleases runs mirror-sync passes against a fake upstream.
func TestSync_MirrorsAndTracksReleases(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstream(t, appRelease("1.0.0"), appRelease("1.1.0"), appRelease("2.0.0"))
	configPath, root := writeSettings(t, upstream, nil)
	ctx := context.Background()

	result, err := updater.Run(ctx, &updater.Options{ConfigPath: configPath})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"1.0.0", "1.1.0", "2.0.0"}, result.Downloaded)

	// Generations keep upstream names, tracking directories expose stripped ones.
	require.Equal(t, "linux 2.0.0", readFile(t, filepath.Join(root, "2.0.0", "app-2.0.0-linux-amd64.tar.gz")))
	require.Equal(t, "linux 2.0.0", readFile(t, filepath.Join(root, "latest", "linux-amd64.tar.gz")))
	require.Equal(t, "windows 1.1.0", readFile(t, filepath.Join(root, "1", "windows_amd64.zip")))
	require.Equal(t, "1.0.0\n", readFile(t, filepath.Join(root, "1.0", "version.txt")))
	require.Contains(t, readFile(t, filepath.Join(root, "latest", "checksums.txt")), "  linux-amd64.tar.gz\n")

	// Every directory verifies, Generations and tracking directories alike.
	summary, err := checker.Run(ctx, &checker.Options{ConfigPath: configPath})
	require.NoError(t, err)
	require.Len(t, summary.Reports, 3+6)

	var document map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, metadata.Path(root))), &document))
	require.Equal(t, map[string]any{
		"latest": "2.0.0",
		"2":      "2.0.0",
		"2.0":    "2.0.0",
		"1":      "1.1.0",
		"1.1":    "1.1.0",
		"1.0":    "1.0.0",
	}, document[metadata.KeyTrackingDirectories])

	// A new release moves only the affected labels and reuses existing Generations.
	before := upstream.downloads.Load()
	upstream.add(appRelease("2.1.0"))

	result, err = updater.Run(ctx, &updater.Options{ConfigPath: configPath})
	require.NoError(t, err)
	require.Equal(t, []string{"2.1.0"}, result.Downloaded)
	require.Equal(t, []string{"latest", "2", "2.1"}, result.Published)
	require.Equal(t, before+3, upstream.downloads.Load())
	require.Equal(t, "linux 2.1.0", readFile(t, filepath.Join(root, "latest", "linux-amd64.tar.gz")))

	// Each label references one scratch tree and no other scratch tree is left behind.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	scratch := 0

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tracking-") {
			scratch++
		}

		require.False(t, strings.HasPrefix(e.Name(), ".incoming-"), e.Name())
	}

	require.Equal(t, 7, scratch)
}

// TestSync_WaitsOutRateLimit completes a pass after an upstream 429.
func TestSync_WaitsOutRateLimit(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstream(t, appRelease("3.2.1"))
	upstream.throttleOnce.Store(true)

	configPath, root := writeSettings(t, upstream, func(cfg *config.Config) {
		cfg.MaxRetries = 1
	})

	started := time.Now()

	_, err := updater.Run(context.Background(), &updater.Options{ConfigPath: configPath})
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(started), 900*time.Millisecond)
	require.Equal(t, "3.2.1\n", readFile(t, filepath.Join(root, "latest", "version.txt")))
}

// TestSync_BadTagWritesNothing fails the pass before any Generation is created.
func TestSync_BadTagWritesNothing(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstream(t, appRelease("1.0.0"), fakeRelease{tag: "nightly"})
	configPath, root := writeSettings(t, upstream, nil)

	_, err := updater.Run(context.Background(), &updater.Options{ConfigPath: configPath})
	require.ErrorContains(t, err, "nightly")
	require.NoDirExists(t, filepath.Join(root, "1.0.0"))
	require.Zero(t, upstream.downloads.Load())
}

// TestSync_RepositoryOverride lets the command line name the repository.
func TestSync_RepositoryOverride(t *testing.T) {
	t.Parallel()

	upstream := newFakeUpstream(t, appRelease("1.0.0"))
	configPath, _ := writeSettings(t, upstream, func(cfg *config.Config) {
		cfg.Repository = "acme/other"
	})

	_, err := updater.Run(context.Background(), &updater.Options{ConfigPath: configPath})
	require.Error(t, err)

	_, err = updater.Run(context.Background(), &updater.Options{ConfigPath: configPath, Repository: "acme/app"})
	require.NoError(t, err)
}
