package checksum

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	// Register the digests published by release tooling.
	_ "crypto/sha1" //nolint:gosec // Legacy manifests still use SHA-1.
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// ErrUnknownDigest is returned when a checksum length matches no supported algorithm.
var ErrUnknownDigest = errors.New("unknown digest algorithm")

// Report lists the outcome of verifying a Generation directory.
type Report struct {
	// Verified are files whose digest matched.
	Verified []string
	// Mismatched are files whose digest differs from the manifest.
	Mismatched []string
	// Missing are manifest entries without a file on disk.
	Missing []string
}

// OK reports whether every manifest entry was present and matched.
func (r *Report) OK() bool {
	return len(r.Mismatched) == 0 && len(r.Missing) == 0
}

// HashForDigest picks the hash function from the hex digest length.
func HashForDigest(digest string) (crypto.Hash, error) {
	switch len(digest) {
	case hex.EncodedLen(crypto.SHA1.Size()):
		return crypto.SHA1, nil
	case hex.EncodedLen(crypto.SHA256.Size()):
		return crypto.SHA256, nil
	case hex.EncodedLen(crypto.SHA512.Size()):
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("digest of length %d: %w", len(digest), ErrUnknownDigest)
	}
}

// FileDigest returns the hex digest of the file at path.
func FileDigest(fs afero.Fs, path string, h crypto.Hash) (string, error) {
	if !h.Available() {
		return "", fmt.Errorf("hash %v: %w", h, ErrUnknownDigest)
	}

	f, err := fs.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := h.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify re-hashes the files of dir against the manifest stored in it.
func Verify(fs afero.Fs, dir string) (*Report, error) {
	f, err := fs.Open(filepath.Join(dir, ManifestFilename))
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	manifest, err := Parse(f)
	_ = f.Close()

	if err != nil {
		return nil, err
	}

	report := new(Report)

	for _, e := range manifest.Entries {
		h, err := HashForDigest(e.Checksum)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}

		digest, err := FileDigest(fs, filepath.Join(dir, e.Name), h)

		switch {
		case errors.Is(err, os.ErrNotExist):
			report.Missing = append(report.Missing, e.Name)
		case err != nil:
			return nil, err
		case strings.EqualFold(digest, e.Checksum):
			report.Verified = append(report.Verified, e.Name)
		default:
			report.Mismatched = append(report.Mismatched, e.Name)
		}
	}

	return report, nil
}
