// Package github is a minimal client for the upstream release API.
//
// Each method performs exactly one HTTP request and classifies its failure
// (rate limit, permanent or transient) for the retry policy applied by the
// caller. Only the first page of releases is read.
package github
