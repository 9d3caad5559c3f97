package gdrive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/queue"
)

type fakeSource struct {
	files      []RemoteFile
	listSince  []time.Time
	downloaded []string
	listErr    error
}

func (f *fakeSource) ListNewRecordings(_ context.Context, since time.Time) ([]RemoteFile, error) {
	f.listSince = append(f.listSince, since)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.files, nil
}

func (f *fakeSource) Download(_ context.Context, file RemoteFile, destDir string) (string, error) {
	f.downloaded = append(f.downloaded, file.ID)
	return filepath.Join(destDir, file.Name), nil
}

type fakeStore struct {
	added []string
	seen  map[string]bool
}

func (f *fakeStore) NewRecording(_ context.Context, sourcePath string, _ queue.Origin, _ string) (*queue.Item, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[sourcePath] {
		return nil, queue.ErrDuplicateSource
	}
	f.seen[sourcePath] = true
	f.added = append(f.added, sourcePath)
	return &queue.Item{ID: int64(len(f.added)), SourcePath: sourcePath}, nil
}

func newTestMonitor(t *testing.T, source Source, store Enqueuer) *Monitor {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	monitor, err := NewMonitor(&cfg, source, store, nil, nil)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return monitor
}

func TestPollDownloadsAndEnqueuesNewRecordings(t *testing.T) {
	source := &fakeSource{files: []RemoteFile{
		{ID: "f1", Name: "standup.mp4"},
		{ID: "f2", Name: "review.mkv"},
	}}
	store := &fakeStore{}
	monitor := newTestMonitor(t, source, store)

	monitor.Poll(context.Background())

	if len(source.downloaded) != 2 || source.downloaded[0] != "f1" || source.downloaded[1] != "f2" {
		t.Fatalf("downloaded = %v, want [f1 f2]", source.downloaded)
	}
	if len(store.added) != 2 {
		t.Fatalf("enqueued %d items, want 2", len(store.added))
	}
	want := filepath.Join(monitor.stagingDir, "standup.mp4")
	if store.added[0] != want {
		t.Fatalf("first enqueued path = %q, want %q", store.added[0], want)
	}
}

func TestPollFirstCheckLooksBackOneHour(t *testing.T) {
	source := &fakeSource{}
	monitor := newTestMonitor(t, source, &fakeStore{})

	monitor.Poll(context.Background())

	if len(source.listSince) != 1 {
		t.Fatalf("list called %d times, want 1", len(source.listSince))
	}
	gap := time.Since(source.listSince[0])
	if gap < 55*time.Minute || gap > 65*time.Minute {
		t.Fatalf("first poll since = %v ago, want about one hour", gap)
	}
}

func TestPollAdvancesCursorOnlyOnSuccess(t *testing.T) {
	source := &fakeSource{listErr: errors.New("listing unavailable")}
	monitor := newTestMonitor(t, source, &fakeStore{})
	initial := monitor.lastCheck

	monitor.Poll(context.Background())
	if !monitor.lastCheck.Equal(initial) {
		t.Fatal("failed poll should not advance the cursor")
	}

	source.listErr = nil
	monitor.Poll(context.Background())
	if !monitor.lastCheck.After(initial) {
		t.Fatal("successful poll should advance the cursor")
	}
}

func TestPollSkipsDuplicates(t *testing.T) {
	source := &fakeSource{files: []RemoteFile{{ID: "f1", Name: "standup.mp4"}}}
	store := &fakeStore{}
	monitor := newTestMonitor(t, source, store)

	monitor.Poll(context.Background())
	monitor.Poll(context.Background())

	if len(store.added) != 1 {
		t.Fatalf("enqueued %d items, want 1", len(store.added))
	}
}

func TestNewMonitorRejectsBadSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Drive.PollSchedule = "not a schedule"
	if _, err := NewMonitor(&cfg, &fakeSource{}, &fakeStore{}, nil, nil); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
