package release

import (
	"regexp"
	"strings"
)

// versionInName matches an embedded "-1.2.3" or "_1.2.3", optionally followed by a "-r4" or "-4" revision.
var versionInName = regexp.MustCompile(`[-_]v?\d+\.\d+\.\d+(?:-r?\d+)?`)

// Stripper removes versions and packaging prefixes from file names so that a
// tracking directory exposes stable names across releases.
type Stripper struct {
	prefixes *regexp.Regexp
}

// NewStripper creates a Stripper removing every "<prefix>-" and "<prefix>_" occurrence.
func NewStripper(prefixes ...string) *Stripper {
	quoted := make([]string, 0, len(prefixes))

	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			quoted = append(quoted, regexp.QuoteMeta(p))
		}
	}

	s := new(Stripper)
	if len(quoted) > 0 {
		s.prefixes = regexp.MustCompile(`(?:` + strings.Join(quoted, "|") + `)[-_]`)
	}

	return s
}

// Strip returns name without its version and packaging prefix.
// Removal repeats until nothing matches, so Strip(Strip(n)) == Strip(n).
func (s *Stripper) Strip(name string) string {
	for {
		stripped := versionInName.ReplaceAllString(name, "")

		if s != nil && s.prefixes != nil {
			stripped = s.prefixes.ReplaceAllString(stripped, "")
		}

		if stripped == name {
			return name
		}

		name = stripped
	}
}
