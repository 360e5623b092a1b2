// Package common holds helpers shared by several services.
//
// It loads settings, assembles the mirror dependency stack from them and
// provides a small gRPC client for the health endpoint of a running server.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
