package tracking

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/oshokin/release-mirror/internal/domain/release"
)

// ErrNotSymlink is returned when a tracking path exists but is not a symbolic link.
// It is never remediated automatically: removing it could destroy data that was not
// published by the mirror.
var ErrNotSymlink = errors.New("tracking path exists and is not a symlink")

// Filesystem is an afero.Fs that can create and read symbolic links.
type Filesystem interface {
	afero.Fs
	afero.Symlinker
}

// LinkKind tags a LinkState.
type LinkKind int

const (
	// LinkMissing means nothing exists at the path.
	LinkMissing LinkKind = iota
	// LinkSymlink means the path is a symbolic link.
	LinkSymlink
)

// LinkState is the observed state of a tracking path.
type LinkState struct {
	Kind LinkKind
	// Target is the raw link value.
	Target string
	// Resolved is Target made absolute against the link's directory.
	Resolved string
}

// Inspect reports the state of path without following it.
func Inspect(fs Filesystem, path string) (LinkState, error) {
	info, _, err := fs.LstatIfPossible(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		return LinkState{Kind: LinkMissing}, nil
	case err != nil:
		return LinkState{}, fmt.Errorf("lstat %s: %w", path, err)
	case info.Mode()&os.ModeSymlink == 0:
		return LinkState{}, fmt.Errorf("%s: %w", path, ErrNotSymlink)
	}

	target, err := fs.ReadlinkIfPossible(path)
	if err != nil {
		return LinkState{}, fmt.Errorf("readlink %s: %w", path, err)
	}

	return LinkState{
		Kind:     LinkSymlink,
		Target:   target,
		Resolved: resolveLink(path, target),
	}, nil
}

// Replace points path at linkValue in one atomic step and removes the tree the
// link pointed at before. A missing path is simply created. The previous state
// is returned.
func Replace(fs Filesystem, path, linkValue string) (LinkState, error) {
	previous, err := Inspect(fs, path)
	if err != nil {
		return LinkState{}, err
	}

	if previous.Kind == LinkMissing {
		if err = fs.SymlinkIfPossible(linkValue, path); err != nil {
			return previous, fmt.Errorf("create link %s: %w", path, err)
		}

		return previous, nil
	}

	tempLink := filepath.Join(filepath.Dir(path), release.TempLinkPrefix+uuid.NewString())
	if err = fs.SymlinkIfPossible(linkValue, tempLink); err != nil {
		return previous, fmt.Errorf("create temporary link: %w", err)
	}

	if err = fs.Rename(tempLink, path); err != nil {
		_ = fs.Remove(tempLink)

		return previous, fmt.Errorf("swap link %s: %w", path, err)
	}

	if filepath.Clean(previous.Resolved) == filepath.Clean(resolveLink(path, linkValue)) {
		return previous, nil
	}

	if err = fs.RemoveAll(previous.Resolved); err != nil {
		return previous, fmt.Errorf("remove previous generation %s: %w", previous.Resolved, err)
	}

	return previous, nil
}

func resolveLink(path, target string) string {
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}

	return filepath.Join(filepath.Dir(path), target)
}
