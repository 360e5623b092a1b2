// Package checksum reads, rewrites and verifies release checksum manifests.
//
// A manifest is the "checksums.txt" file published with a release: one
// "<hex digest> <file name>" line per asset. Tracking directories carry a
// rewritten copy whose file names match their stripped symlink names.
package checksum
