// Package tracking publishes tracking directories (latest, <major>,
// <major>.<minor>) over immutable Generation directories.
//
// A tracking path is always a symbolic link to a fully built scratch
// directory. Publication builds a new scratch tree off to the side and flips
// the link with a single rename, so readers see either the old tree or the new
// one and never anything in between. The replaced tree is removed right after
// the flip; readers that still hold files open from it are not waited for.
package tracking
