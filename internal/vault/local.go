package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"scribe/internal/logging"
	"scribe/internal/services"
)

// Local stores the vault on the local filesystem rooted at a directory.
type Local struct {
	root   string
	logger *slog.Logger
}

// NewLocal returns a Storage backed by the filesystem under root.
func NewLocal(root string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Local{root: root, logger: logger}
}

// Root returns the vault root directory.
func (l *Local) Root() string { return l.root }

// EnsureLayout creates the vault root and its standard subdirectories.
func (l *Local) EnsureLayout(ctx context.Context) error {
	for _, dir := range Layout() {
		if err := os.MkdirAll(filepath.Join(l.root, dir), 0o755); err != nil {
			return services.Wrap(services.ErrStorage, "save", "ensure-layout",
				fmt.Sprintf("create vault directory %s", dir), err)
		}
	}
	return nil
}

// WriteNote writes content to a vault-relative path, creating parent
// directories as needed. The write goes through a temp file and rename so a
// crash never leaves a half-written note behind.
func (l *Local) WriteNote(ctx context.Context, relPath string, content []byte) error {
	target, err := l.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "save", "write-note", "create note directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".scribe-*.tmp")
	if err != nil {
		return services.Wrap(services.ErrStorage, "save", "write-note", "create temp note", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return services.Wrap(services.ErrStorage, "save", "write-note", "write note content", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return services.Wrap(services.ErrStorage, "save", "write-note", "close temp note", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return services.Wrap(services.ErrStorage, "save", "write-note", "finalize note", err)
	}

	l.logger.Debug("note written", "path", relPath, "bytes", len(content))
	return nil
}

// ReadNote returns the content of a note, or services.ErrNotFound when the
// note does not exist.
func (l *Local) ReadNote(ctx context.Context, relPath string) ([]byte, error) {
	target, err := l.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.New(services.ErrNotFound, "save", "read-note", "note not found", err).
				WithContext("path", relPath)
		}
		return nil, services.Wrap(services.ErrStorage, "save", "read-note", "read note", err)
	}
	return data, nil
}

// Exists reports whether a note is present at the vault-relative path.
func (l *Local) Exists(ctx context.Context, relPath string) (bool, error) {
	target, err := l.resolve(relPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, services.Wrap(services.ErrStorage, "save", "stat-note", "stat note", err)
}

// ErrorReportDir returns the Reports directory inside the vault.
func (l *Local) ErrorReportDir() string {
	return filepath.Join(l.root, ReportsDir)
}

// resolve joins a vault-relative path onto the root and rejects paths that
// escape the vault.
func (l *Local) resolve(relPath string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(relPath))
	if cleaned == "." || cleaned == ".." || filepath.IsAbs(cleaned) ||
		cleaned == string(filepath.Separator) || hasDotDotPrefix(cleaned) {
		return "", services.New(services.ErrValidation, "save", "resolve-path",
			"note path escapes vault", nil).WithContext("path", relPath)
	}
	return filepath.Join(l.root, cleaned), nil
}

func hasDotDotPrefix(path string) bool {
	return path == ".." || len(path) > 2 && path[:3] == ".."+string(filepath.Separator)
}
