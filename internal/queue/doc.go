// Package queue persists recording pipeline state in SQLite. Workers claim
// items with a compare-and-set status transition and drive them through the
// stage chain; heartbeats let the daemon reclaim items orphaned by a crash.
package queue
