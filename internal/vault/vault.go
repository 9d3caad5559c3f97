// Package vault persists rendered notes into an Obsidian-style vault.
//
// A vault is a folder tree with fixed top-level directories. The Storage
// interface abstracts over where that tree lives: on the local filesystem or
// inside a Google Drive folder.
package vault

import (
	"context"
)

// Top-level vault directories, created by EnsureLayout.
const (
	MeetingsDir = "Meetings"
	EntitiesDir = "Entities"
	TasksDir    = "Tasks"
	ReportsDir  = "Reports"
	CacheDir    = ".cache"
)

// Layout returns the directory names every vault carries.
func Layout() []string {
	return []string{MeetingsDir, EntitiesDir, TasksDir, ReportsDir, CacheDir}
}

// Storage writes notes into a vault. Paths are vault-relative and use
// forward slashes, e.g. "Meetings/2026-03-01 Planning.md".
type Storage interface {
	// EnsureLayout creates the vault directory structure if missing.
	EnsureLayout(ctx context.Context) error

	// WriteNote stores content at the given vault-relative path,
	// replacing any existing note.
	WriteNote(ctx context.Context, relPath string, content []byte) error

	// ReadNote returns the content of an existing note. A missing note
	// reports services.ErrNotFound.
	ReadNote(ctx context.Context, relPath string) ([]byte, error)

	// Exists reports whether a note is already present at the path.
	Exists(ctx context.Context, relPath string) (bool, error)

	// ErrorReportDir returns a local filesystem directory where error
	// reports can be written even when the vault backend is unreachable.
	ErrorReportDir() string
}
