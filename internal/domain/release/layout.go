package release

import (
	"path/filepath"
	"strings"
)

// Names of the private entries kept next to Generations under the mirror root.
// All of them start with a dot so they can never collide with a version directory.
const (
	// StagingPrefix names directories a Generation is downloaded into before it is renamed into place.
	StagingPrefix = ".incoming-"
	// ScratchPrefix names the directories tracking links point to.
	ScratchPrefix = ".tracking-"
	// TempLinkPrefix names the temporary links renamed over tracking paths.
	TempLinkPrefix = ".link-"
	// MetaDirectory holds the metadata record.
	MetaDirectory = "meta"
)

// GenerationDir returns the immutable directory of version v under root.
func GenerationDir(root string, v Version) string {
	return filepath.Join(root, v.Full)
}

// IsPrivateName reports whether name is one of the mirror's private entries.
func IsPrivateName(name string) bool {
	return strings.HasPrefix(name, StagingPrefix) ||
		strings.HasPrefix(name, ScratchPrefix) ||
		strings.HasPrefix(name, TempLinkPrefix)
}
