// Package cache persists analysis results keyed by normalized transcript
// hash and serves near-duplicate meetings through keyword similarity, so
// re-processed or lightly edited recordings skip the expensive analysis
// calls.
package cache
