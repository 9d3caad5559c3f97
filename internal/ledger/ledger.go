// Package ledger records which source files have been fully processed, so a
// restarted daemon never reprocesses a finished recording.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"scribe/internal/logging"
)

const fileName = "processed_files.txt"

// Ledger is an append-only set of processed filenames backed by a text file,
// one name per line.
type Ledger struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	names map[string]struct{}
}

// Open loads the ledger from dir. In testing mode any existing ledger is
// discarded so every run starts clean.
func Open(dir string, testingMode bool, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	l := &Ledger{
		path:   filepath.Join(dir, fileName),
		logger: logger,
		names:  map[string]struct{}{},
	}

	if testingMode {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reset ledger: %w", err)
		}
		logger.Info("testing mode: processed-files ledger cleared")
		return l, nil
	}

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := scanner.Text()
		if name != "" {
			l.names[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(l.names) > 0 {
		logger.Info("loaded processed-files ledger", logging.Int("entries", len(l.names)))
	}
	return l, nil
}

// Identity derives the ledger key for a source file: absolute path plus
// size, so a re-uploaded file with different content is not skipped.
func Identity(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve ledger identity: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("resolve ledger identity: %w", err)
	}
	return fmt.Sprintf("%s|%d", abs, info.Size()), nil
}

// Contains reports whether the filename has already been processed.
func (l *Ledger) Contains(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.names[name]
	return ok
}

// Mark records the filename as processed, appending it to the backing file.
// Marking an already-known name is a no-op.
func (l *Ledger) Mark(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.names[name]; ok {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append to ledger: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, name); err != nil {
		return fmt.Errorf("append to ledger: %w", err)
	}
	l.names[name] = struct{}{}
	return nil
}

// Names returns the processed filenames in sorted order.
func (l *Ledger) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.names))
	for name := range l.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of processed files.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.names)
}
