package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/ledger"
	"scribe/internal/queue"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	paths []string
	seen  map[string]bool
}

func (f *fakeEnqueuer) NewRecording(ctx context.Context, sourcePath string, origin queue.Origin, remoteID string) (*queue.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[sourcePath] {
		return nil, queue.ErrDuplicateSource
	}
	f.seen[sourcePath] = true
	f.paths = append(f.paths, sourcePath)
	return &queue.Item{ID: int64(len(f.paths)), SourcePath: sourcePath, Origin: origin}, nil
}

func (f *fakeEnqueuer) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func newTestWatcher(t *testing.T, dir string, settle time.Duration) (*Watcher, *fakeEnqueuer) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.InputDir = dir
	cfg.Watch.SettleSeconds = 0
	store := &fakeEnqueuer{}
	w := New(&cfg, store, nil, nil, nil)
	w.settle = settle
	return w, store
}

type fakeProcessed map[string]bool

func (f fakeProcessed) Contains(identity string) bool { return f[identity] }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcherEnqueuesSettledFile(t *testing.T) {
	dir := t.TempDir()
	w, store := newTestWatcher(t, dir, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "standup.mp4")
	if err := os.WriteFile(path, []byte("recording bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return len(store.snapshot()) == 1 }) {
		t.Fatalf("file not enqueued: %v", store.snapshot())
	}
	if store.snapshot()[0] != path {
		t.Fatalf("enqueued %v, want %s", store.snapshot(), path)
	}

	cancel()
	<-done
}

func TestWatcherIgnoresUnsupportedAndTempFiles(t *testing.T) {
	dir := t.TempDir()
	w, store := newTestWatcher(t, dir, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"notes.txt", ".hidden.mp4", "copy.mp4.part", "download.crdownload"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	time.Sleep(400 * time.Millisecond)
	if got := store.snapshot(); len(got) != 0 {
		t.Fatalf("unexpected enqueues: %v", got)
	}
}

func TestWatcherScansExistingFilesOnStartup(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "retro.mkv")
	if err := os.WriteFile(existing, []byte("recording"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	w, store := newTestWatcher(t, dir, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	if !waitFor(t, 2*time.Second, func() bool { return len(store.snapshot()) == 1 }) {
		t.Fatalf("existing file not enqueued: %v", store.snapshot())
	}
}

func TestWatcherSkipsAlreadyProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	done := filepath.Join(dir, "retro.mkv")
	contents := []byte("recording")
	if err := os.WriteFile(done, contents, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	identity, err := ledger.Identity(done)
	if err != nil {
		t.Fatalf("ledger.Identity: %v", err)
	}

	w, store := newTestWatcher(t, dir, 50*time.Millisecond)
	w.processed = fakeProcessed{identity: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	fresh := filepath.Join(dir, "standup.mp4")
	if err := os.WriteFile(fresh, contents, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return len(store.snapshot()) == 1 }) {
		t.Fatalf("fresh file not enqueued: %v", store.snapshot())
	}
	if got := store.snapshot(); got[0] != fresh {
		t.Fatalf("expected only the fresh file, got %v", got)
	}
}

func TestEligible(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"meeting.mp4", true},
		{"audio.flac", true},
		{"notes.txt", false},
		{".hidden.mp4", false},
		{"~lock.mov", false},
		{"copy.mp4.tmp", false},
	}
	for _, tc := range cases {
		if got := eligible(tc.path); got != tc.want {
			t.Errorf("eligible(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
