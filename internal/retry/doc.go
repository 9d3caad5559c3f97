// Package retry provides bounded exponential-backoff retry loops with
// presets tuned for API calls, local IO, and network transports.
package retry
