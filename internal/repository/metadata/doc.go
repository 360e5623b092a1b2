// Package metadata persists the mirror's metadata record.
//
// The record is a free-form JSON object stored at {root}/meta/metadata.json.
// Updates are merged into the stored document: keys of the patch replace
// existing keys and every other key survives, so fields written by other tools
// are never lost.
package metadata
