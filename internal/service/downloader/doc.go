// Package downloader mirrors upstream releases into immutable Generation directories.
//
// Every release whose directory is missing gets its assets downloaded into a
// private staging directory, which is renamed into place once complete. All
// upstream calls of a pass share one concurrency ceiling and go through the
// retry policy.
package downloader
