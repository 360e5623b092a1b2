package tracking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/oshokin/release-mirror/internal/checksum"
	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/logger"
)

// VersionMarkerFilename names the file holding the Full version of a tracking directory.
const VersionMarkerFilename = "version.txt"

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// ErrNameCollision is returned when two files of a Generation strip to the same name.
var ErrNameCollision = errors.New("stripped file names collide")

// ErrInvalidLabel is returned for labels that cannot name an entry of the mirror root.
var ErrInvalidLabel = errors.New("invalid tracking label")

// Publisher builds and swaps tracking directories under a mirror root.
type Publisher struct {
	fs       Filesystem
	root     string
	stripper *release.Stripper
}

// NewPublisher creates a Publisher for root.
func NewPublisher(fs Filesystem, root string, stripper *release.Stripper) *Publisher {
	return &Publisher{
		fs:       fs,
		root:     root,
		stripper: stripper,
	}
}

// Publish makes label resolve to a tree of version v.
func (p *Publisher) Publish(ctx context.Context, label string, v release.Version) error {
	scratch, err := p.Build(ctx, label, v)
	if err != nil {
		return err
	}

	return p.Swap(ctx, label, scratch)
}

// Build creates a scratch tree for v off the visible path and returns its location.
// The tree holds relative links to the Generation under stripped names, the rewritten
// checksum manifest and the version marker. Nothing that readers can see is touched.
func (p *Publisher) Build(ctx context.Context, label string, v release.Version) (scratch string, err error) {
	if err = validateLabel(label); err != nil {
		return "", err
	}

	generation := release.GenerationDir(p.root, v)

	entries, err := afero.ReadDir(p.fs, generation)
	if err != nil {
		return "", fmt.Errorf("read generation %s: %w", v.Full, err)
	}

	scratch = filepath.Join(p.root, release.ScratchPrefix+uuid.NewString())
	if err = p.fs.Mkdir(scratch, dirMode); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}

	defer func() {
		if err != nil {
			_ = p.fs.RemoveAll(scratch)
			scratch = ""
		}
	}()

	var (
		present     = make(map[string]struct{}, len(entries))
		sources     = make(map[string]string, len(entries))
		hasManifest bool
	)

	for _, entry := range entries {
		name := entry.Name()

		switch {
		case entry.IsDir():
			continue
		case name == checksum.ManifestFilename:
			hasManifest = true

			continue
		}

		stripped := p.stripper.Strip(name)
		if stripped == "" || stripped == checksum.ManifestFilename || stripped == VersionMarkerFilename {
			return "", fmt.Errorf("%s strips to reserved name %q: %w", name, stripped, ErrNameCollision)
		}

		if other, ok := sources[stripped]; ok {
			return "", fmt.Errorf("%s and %s both strip to %s: %w", other, name, stripped, ErrNameCollision)
		}

		sources[stripped] = name
		present[name] = struct{}{}

		linkValue := filepath.Join("..", v.Full, name)
		if err = p.fs.SymlinkIfPossible(linkValue, filepath.Join(scratch, stripped)); err != nil {
			return "", fmt.Errorf("link %s: %w", name, err)
		}
	}

	if hasManifest {
		if err = p.writeManifest(generation, scratch, present); err != nil {
			return "", err
		}
	}

	marker := filepath.Join(scratch, VersionMarkerFilename)
	if err = afero.WriteFile(p.fs, marker, []byte(v.Full+"\n"), fileMode); err != nil {
		return "", fmt.Errorf("write version marker: %w", err)
	}

	logger.DebugKV(ctx, "Built tracking tree",
		"label", label,
		"version", v.Full,
		"scratch", filepath.Base(scratch),
		"files", len(sources))

	return scratch, nil
}

// Swap points label at scratch and removes the tree it pointed at before.
// The scratch tree is removed when the swap fails.
func (p *Publisher) Swap(ctx context.Context, label, scratch string) error {
	if err := validateLabel(label); err != nil {
		return err
	}

	previous, err := Replace(p.fs, p.trackingPath(label), filepath.Base(scratch))
	if err != nil {
		// A failed removal of the old tree happens after the flip, the new tree is live.
		if current, inspectErr := Inspect(p.fs, p.trackingPath(label)); inspectErr != nil ||
			filepath.Clean(current.Resolved) != filepath.Clean(scratch) {
			_ = p.fs.RemoveAll(scratch)
		}

		return fmt.Errorf("publish %s: %w", label, err)
	}

	logger.InfoKV(ctx, "Published tracking directory",
		"label", label,
		"scratch", filepath.Base(scratch),
		"replaced", previous.Kind == LinkSymlink)

	return nil
}

// Current returns the version published under label.
// The second result is false when label has not been published yet.
func (p *Publisher) Current(label string) (string, bool, error) {
	if err := validateLabel(label); err != nil {
		return "", false, err
	}

	path := p.trackingPath(label)

	state, err := Inspect(p.fs, path)
	if err != nil {
		return "", false, err
	}

	if state.Kind == LinkMissing {
		return "", false, nil
	}

	data, err := afero.ReadFile(p.fs, filepath.Join(state.Resolved, VersionMarkerFilename))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("read version marker of %s: %w", label, err)
	}

	return strings.TrimSpace(string(data)), true, nil
}

// Sweep removes private entries left behind by interrupted passes: scratch trees no
// tracking link points at, staging directories and temporary links. Only entries
// older than olderThan are touched, so trees of a pass in progress survive.
func (p *Publisher) Sweep(ctx context.Context, olderThan time.Duration) ([]string, error) {
	entries, err := afero.ReadDir(p.fs, p.root)
	if err != nil {
		return nil, fmt.Errorf("read mirror root: %w", err)
	}

	referenced := make(map[string]struct{})

	for _, entry := range entries {
		if entry.Mode()&os.ModeSymlink == 0 || release.IsPrivateName(entry.Name()) {
			continue
		}

		state, inspectErr := Inspect(p.fs, filepath.Join(p.root, entry.Name()))
		if inspectErr != nil {
			return nil, inspectErr
		}

		referenced[filepath.Clean(state.Resolved)] = struct{}{}
	}

	var (
		cutoff  = time.Now().Add(-olderThan)
		removed []string
	)

	for _, entry := range entries {
		name := entry.Name()
		if !release.IsPrivateName(name) || entry.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(p.root, name)
		if _, ok := referenced[path]; ok {
			continue
		}

		if err = p.fs.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}

		logger.InfoKV(ctx, "Removed leftover entry", "name", name)

		removed = append(removed, name)
	}

	return removed, nil
}

func (p *Publisher) trackingPath(label string) string {
	return filepath.Join(p.root, label)
}

func (p *Publisher) writeManifest(generation, scratch string, present map[string]struct{}) error {
	file, err := p.fs.Open(filepath.Join(generation, checksum.ManifestFilename))
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	manifest, err := checksum.Parse(file)
	if err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	rewritten := manifest.Rewrite(p.stripper.Strip, func(name string) bool {
		_, ok := present[name]

		return ok
	})

	out, err := p.fs.OpenFile(filepath.Join(scratch, checksum.ManifestFilename), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}

	if err = rewritten.Write(out); err != nil {
		_ = out.Close()

		return fmt.Errorf("write manifest: %w", err)
	}

	return out.Close()
}

func validateLabel(label string) error {
	if label == "" ||
		label == "." ||
		label == ".." ||
		label == release.MetaDirectory ||
		strings.ContainsAny(label, `/\`) ||
		release.IsPrivateName(label) {
		return fmt.Errorf("%q: %w", label, ErrInvalidLabel)
	}

	return nil
}
