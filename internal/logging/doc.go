// Package logging provides slog construction helpers and shared attribute
// conventions for console and JSON output.
package logging
