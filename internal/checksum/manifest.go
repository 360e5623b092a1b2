package checksum

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ManifestFilename is the checksum manifest published with each release.
const ManifestFilename = "checksums.txt"

// ErrMalformedLine is returned for manifest lines that are not "<digest> <name>".
var ErrMalformedLine = errors.New("malformed checksum line")

// Entry is a single manifest line.
type Entry struct {
	Checksum string
	Name     string
}

// Manifest is an ordered list of checksum entries.
type Manifest struct {
	Entries []Entry
}

// Parse reads a manifest. Blank lines are skipped and a leading "*" binary marker is dropped.
func Parse(r io.Reader) (*Manifest, error) {
	m := new(Manifest)
	scanner := bufio.NewScanner(r)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: %w", lineNumber, ErrMalformedLine)
		}

		m.Entries = append(m.Entries, Entry{
			Checksum: fields[0],
			Name:     strings.TrimPrefix(fields[1], "*"),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return m, nil
}

// Write emits the manifest in the two-space format understood by sha256sum -c.
func (m *Manifest) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	for _, e := range m.Entries {
		if _, err := fmt.Fprintf(bw, "%s  %s\n", e.Checksum, e.Name); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Rewrite returns a manifest with every name passed through rename.
// Entries for which keep returns false are dropped. A nil keep keeps everything.
func (m *Manifest) Rewrite(rename func(string) string, keep func(string) bool) *Manifest {
	out := &Manifest{
		Entries: make([]Entry, 0, len(m.Entries)),
	}

	for _, e := range m.Entries {
		if keep != nil && !keep(e.Name) {
			continue
		}

		out.Entries = append(out.Entries, Entry{
			Checksum: e.Checksum,
			Name:     rename(e.Name),
		})
	}

	return out
}

// Lookup returns the checksum recorded for name.
func (m *Manifest) Lookup(name string) (string, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e.Checksum, true
		}
	}

	return "", false
}
