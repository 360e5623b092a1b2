// Package logger wraps zap with a context-scoped sugared logger.
//
// Every service receives a context and pulls its logger from it, so names and
// key-value pairs attached upstream (WithName, WithKV) follow a sync pass
// through the downloader, the publisher and the metadata store.
package logger
