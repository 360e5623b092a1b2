package release

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Release is an upstream release as returned by the release API.
type Release struct {
	// Tag is the raw tag name, usually with a leading "v".
	Tag string
	// AssetsURL is the API endpoint listing the release assets.
	AssetsURL string
	// Prerelease is the upstream prerelease flag.
	Prerelease bool
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	// DownloadURL is the direct download link.
	DownloadURL string
	// FileName is the name the asset is stored under inside a Generation.
	FileName string
}

// ErrInvalidFileName is returned for asset names that would escape a Generation directory.
var ErrInvalidFileName = errors.New("invalid asset file name")

// NewAsset builds an Asset, taking the file name from the last URL segment when name is empty.
func NewAsset(downloadURL, name string) (Asset, error) {
	if name == "" {
		u, err := url.Parse(downloadURL)
		if err != nil {
			return Asset{}, fmt.Errorf("parse download url %q: %w", downloadURL, err)
		}

		name = path.Base(u.Path)
	}

	if name == "" || name == "." || name == ".." || name == "/" ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return Asset{}, fmt.Errorf("%q: %w", name, ErrInvalidFileName)
	}

	return Asset{
		DownloadURL: downloadURL,
		FileName:    name,
	}, nil
}
