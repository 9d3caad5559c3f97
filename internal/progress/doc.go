// Package progress tracks per-file pipeline progress with weighted stages,
// ETA estimation, and throttled log output.
package progress
