// Package server runs the long-lived mirror process: the HTTP trigger
// endpoints, the periodic scheduler and the optional gRPC health endpoint.
package server
