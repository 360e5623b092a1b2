// Package retry applies the retry discipline to upstream calls.
//
// Transient failures are retried a bounded number of times with exponential
// backoff. Rate-limit responses are not failures: the policy sleeps until the
// provider's reset instant and tries again, as often as it takes.
// Permanent failures are returned at once.
package retry
