package gdrive

import (
	"bytes"
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"

	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/vault"
)

// Storage implements vault.Storage on top of a Drive folder. Notes are
// uploaded under the configured vault folder; error reports still go to a
// local directory so failures are recorded even when Drive is unreachable.
type Storage struct {
	client    *Client
	rootID    string
	reportDir string
	logger    *slog.Logger

	mu      sync.Mutex
	folders map[string]string // vault-relative dir -> folder ID
}

// NewStorage returns Drive-backed vault storage rooted at folderID.
func NewStorage(client *Client, folderID, reportDir string, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Storage{
		client:    client,
		rootID:    folderID,
		reportDir: reportDir,
		logger:    logging.NewComponentLogger(logger, "gdrive-vault"),
		folders:   map[string]string{"": folderID},
	}
}

// EnsureLayout creates the standard vault folders under the root folder.
func (s *Storage) EnsureLayout(ctx context.Context) error {
	for _, dir := range vault.Layout() {
		if _, err := s.folderID(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

// WriteNote uploads content to relPath, creating intermediate folders and
// replacing any existing file of the same name.
func (s *Storage) WriteNote(ctx context.Context, relPath string, content []byte) error {
	dir, name, err := splitNotePath(relPath)
	if err != nil {
		return err
	}
	parentID, err := s.folderID(ctx, dir)
	if err != nil {
		return err
	}
	return s.client.Upload(ctx, name, parentID, bytes.NewReader(content))
}

// ReadNote fetches the note at relPath. Missing notes map to
// services.ErrNotFound so callers can distinguish first writes from failures.
func (s *Storage) ReadNote(ctx context.Context, relPath string) ([]byte, error) {
	dir, name, err := splitNotePath(relPath)
	if err != nil {
		return nil, err
	}
	parentID, err := s.folderID(ctx, dir)
	if err != nil {
		return nil, err
	}
	fileID, err := s.client.FindFile(ctx, name, parentID)
	if err != nil {
		return nil, err
	}
	if fileID == "" {
		return nil, services.New(services.ErrNotFound, "storage", "read_note", "note not found", nil).
			WithContext("path", relPath)
	}
	return s.client.DownloadContent(ctx, fileID)
}

// Exists reports whether a note is present at relPath.
func (s *Storage) Exists(ctx context.Context, relPath string) (bool, error) {
	dir, name, err := splitNotePath(relPath)
	if err != nil {
		return false, err
	}
	parentID, err := s.folderID(ctx, dir)
	if err != nil {
		return false, err
	}
	fileID, err := s.client.FindFile(ctx, name, parentID)
	if err != nil {
		return false, err
	}
	return fileID != "", nil
}

// ErrorReportDir returns the local directory for error reports.
func (s *Storage) ErrorReportDir() string {
	return s.reportDir
}

// folderID resolves a vault-relative directory to its Drive folder ID,
// creating folders as needed. Results are cached for the storage lifetime.
func (s *Storage) folderID(ctx context.Context, dir string) (string, error) {
	dir = strings.Trim(path.Clean(dir), "/")
	if dir == "." {
		dir = ""
	}
	s.mu.Lock()
	id, ok := s.folders[dir]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	parentID := s.rootID
	prefix := ""
	for _, segment := range strings.Split(dir, "/") {
		if prefix == "" {
			prefix = segment
		} else {
			prefix = prefix + "/" + segment
		}
		s.mu.Lock()
		cached, ok := s.folders[prefix]
		s.mu.Unlock()
		if ok {
			parentID = cached
			continue
		}
		created, err := s.client.EnsureFolder(ctx, segment, parentID)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.folders[prefix] = created
		s.mu.Unlock()
		parentID = created
	}
	return parentID, nil
}

func splitNotePath(relPath string) (dir, name string, err error) {
	cleaned := path.Clean(strings.TrimSpace(relPath))
	if cleaned == "" || cleaned == "." || path.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", "", services.New(services.ErrValidation, "storage", "resolve_path", "invalid note path", nil).
			WithContext("path", relPath)
	}
	dir, name = path.Split(cleaned)
	return strings.Trim(dir, "/"), name, nil
}
