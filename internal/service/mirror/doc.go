// Package mirror runs sync passes: download missing releases, resolve the
// tracking labels, publish every changed label and record the outcome in the
// metadata store.
package mirror
