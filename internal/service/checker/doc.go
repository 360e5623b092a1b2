// Package checker verifies mirrored files against their checksum manifests.
package checker
