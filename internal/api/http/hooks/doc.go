// Package hooks exposes the HTTP trigger surface of the mirror: a greeting,
// a hook that runs a sync pass on demand and a status endpoint.
package hooks
