package release

import (
	"slices"
	"sort"
)

// LatestLabel is the tracking label that always follows the highest version.
const LatestLabel = "latest"

// TagMapping maps tracking labels to the version each should point to.
type TagMapping map[string]Version

// Resolve computes the tag mapping for a set of versions.
// Every alias points at the highest version matching it, regardless of input order.
func Resolve(versions []Version) TagMapping {
	mapping := make(TagMapping, len(versions)*2+1)
	if len(versions) == 0 {
		return mapping
	}

	sorted := slices.Clone(versions)
	SortDescending(sorted)

	mapping[LatestLabel] = sorted[0]

	for _, v := range sorted {
		if _, ok := mapping[v.MajorLabel()]; !ok {
			mapping[v.MajorLabel()] = v
		}

		if _, ok := mapping[v.MinorLabel()]; !ok {
			mapping[v.MinorLabel()] = v
		}
	}

	return mapping
}

// Labels returns the labels in a stable order: latest first, then newest version first.
func (m TagMapping) Labels() []string {
	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}

	sort.Slice(labels, func(i, j int) bool {
		a, b := labels[i], labels[j]

		switch {
		case a == LatestLabel:
			return b != LatestLabel
		case b == LatestLabel:
			return false
		}

		if c := Compare(m[a], m[b]); c != 0 {
			return c > 0
		}

		return a < b
	})

	return labels
}

// Versions returns the label -> Full view stored in the metadata record.
func (m TagMapping) Versions() map[string]string {
	out := make(map[string]string, len(m))
	for label, v := range m {
		out[label] = v.Full
	}

	return out
}
