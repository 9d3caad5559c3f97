package resources

import (
	"log/slog"
	"os"
	"sync"

	"scribe/internal/logging"
)

// Registry tracks temporary files and directories so failed or interrupted
// processing never leaves debris behind.
type Registry struct {
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]struct{}
	dirs  map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		logger: logger,
		files:  map[string]struct{}{},
		dirs:   map[string]struct{}{},
	}
}

// TempFile creates a tracked temporary file and returns its path with a
// cleanup function. Cleanup is idempotent.
func (r *Registry) TempFile(pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	_ = f.Close()

	r.mu.Lock()
	r.files[path] = struct{}{}
	r.mu.Unlock()

	return path, func() { r.ReleaseFile(path) }, nil
}

// TempDir creates a tracked temporary directory with a cleanup function.
func (r *Registry) TempDir(pattern string) (string, func(), error) {
	path, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", nil, err
	}

	r.mu.Lock()
	r.dirs[path] = struct{}{}
	r.mu.Unlock()

	return path, func() { r.ReleaseDir(path) }, nil
}

// TrackFile registers an externally created file for cleanup.
func (r *Registry) TrackFile(path string) {
	r.mu.Lock()
	r.files[path] = struct{}{}
	r.mu.Unlock()
}

// ReleaseFile removes a tracked file from disk and from the registry.
func (r *Registry) ReleaseFile(path string) {
	r.mu.Lock()
	delete(r.files, path)
	r.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("could not remove temporary file", logging.String("path", path), logging.Error(err))
	}
}

// ReleaseDir removes a tracked directory tree from disk and the registry.
func (r *Registry) ReleaseDir(path string) {
	r.mu.Lock()
	delete(r.dirs, path)
	r.mu.Unlock()

	if err := os.RemoveAll(path); err != nil {
		r.logger.Warn("could not remove temporary directory", logging.String("path", path), logging.Error(err))
	}
}

// CleanupAll removes everything still tracked. Called on shutdown and when
// the memory monitor escalates.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	files := make([]string, 0, len(r.files))
	for path := range r.files {
		files = append(files, path)
	}
	dirs := make([]string, 0, len(r.dirs))
	for path := range r.dirs {
		dirs = append(dirs, path)
	}
	r.mu.Unlock()

	for _, path := range files {
		r.ReleaseFile(path)
	}
	for _, path := range dirs {
		r.ReleaseDir(path)
	}
	if len(files)+len(dirs) > 0 {
		r.logger.Info("cleaned up temporary artifacts",
			logging.Int("files", len(files)),
			logging.Int("dirs", len(dirs)))
	}
}

// Counts reports how many files and directories are currently tracked.
func (r *Registry) Counts() (files, dirs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files), len(r.dirs)
}
