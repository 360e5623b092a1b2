package release

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion is returned for tags that are not semantic versions.
var ErrInvalidVersion = errors.New("invalid version tag")

// Version is a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	// Full is the tag without its leading "v". It names the Generation directory.
	Full string
}

// ParseVersion parses a release tag, stripping one leading "v".
func ParseVersion(tag string) (Version, error) {
	full := strings.TrimPrefix(strings.TrimSpace(tag), "v")
	if full == "" {
		return Version{}, fmt.Errorf("%q: %w", tag, ErrInvalidVersion)
	}

	// Shorthand tags such as "1.9" are rejected: their directory would shadow a tracking label.
	canonical := semver.Canonical("v" + full)
	if canonical == "" || canonical+semver.Build("v"+full) != "v"+full {
		return Version{}, fmt.Errorf("%q: %w", tag, ErrInvalidVersion)
	}

	prerelease := semver.Prerelease(canonical)
	core := strings.TrimSuffix(strings.TrimPrefix(canonical, "v"), prerelease)

	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%q: %w", tag, ErrInvalidVersion)
	}

	numbers := make([]int, len(parts))

	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("%q: %w", tag, ErrInvalidVersion)
		}

		numbers[i] = n
	}

	return Version{
		Major:      numbers[0],
		Minor:      numbers[1],
		Patch:      numbers[2],
		Prerelease: strings.TrimPrefix(prerelease, "-"),
		Full:       full,
	}, nil
}

// ParseTags parses every tag and fails on the first one that is not a version.
func ParseTags(tags []string) ([]Version, error) {
	versions := make([]Version, 0, len(tags))

	for _, tag := range tags {
		v, err := ParseVersion(tag)
		if err != nil {
			return nil, err
		}

		versions = append(versions, v)
	}

	return versions, nil
}

// Compare orders versions by semantic precedence, breaking ties by Full.
func Compare(a, b Version) int {
	if c := semver.Compare("v"+a.Full, "v"+b.Full); c != 0 {
		return c
	}

	return strings.Compare(a.Full, b.Full)
}

// SortDescending sorts versions newest first.
func SortDescending(versions []Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) > 0
	})
}

// IsPrerelease reports whether the version carries a prerelease suffix.
func (v Version) IsPrerelease() bool {
	return v.Prerelease != ""
}

// MajorLabel is the tracking label of the version's major series.
func (v Version) MajorLabel() string {
	return strconv.Itoa(v.Major)
}

// MinorLabel is the tracking label of the version's major.minor series.
func (v Version) MinorLabel() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// String returns Full.
func (v Version) String() string {
	return v.Full
}
