// Package updater runs a single sync pass from the command line.
//
// It brings the local mirror up to date with the upstream releases, publishes
// the tracking directories and logs what changed along with retry statistics.
package updater
