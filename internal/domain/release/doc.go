// Package release contains the domain types of the mirror: upstream releases
// and their assets, parsed semantic versions, the tag mapping that decides
// which version every tracking directory shows, and the file-name stripping
// rule shared by tracking symlinks and rewritten checksum manifests.
package release
