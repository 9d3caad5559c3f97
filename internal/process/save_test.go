package process

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scribe/internal/notes"
	"scribe/internal/queue"
	"scribe/internal/testsupport"
	"scribe/internal/vault"
)

type fakeLedger struct {
	marked []string
}

func (f *fakeLedger) Mark(name string) error {
	f.marked = append(f.marked, name)
	return nil
}

type fakeRemote struct {
	moved []string
}

func (f *fakeRemote) MoveToProcessed(_ context.Context, fileID string) error {
	f.moved = append(f.moved, fileID)
	return nil
}

func newSaveItem(t *testing.T, dir string) *queue.Item {
	t.Helper()
	source := writeSource(t, dir, "standup.mp4", "video-bytes")
	transcript := writeSource(t, dir, "standup.txt", "Alice: shipping on track.")
	analysis := writeSource(t, dir, "standup.analysis.md", "1. **Meeting Summary**: all on track")
	return &queue.Item{
		SourcePath:     source,
		SourceName:     "standup.mp4",
		Origin:         queue.OriginLocal,
		CreatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		AudioPath:      writeSource(t, dir, "standup.flac", "flac"),
		TranscriptPath: transcript,
		AnalysisPath:   analysis,
	}
}

func TestSaverWritesNoteAndRetiresSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := vault.NewLocal(cfg.Paths.VaultDir, nil)
	item := newSaveItem(t, cfg.Paths.StagingDir)
	if err := storeMetadata(item, Metadata{DurationSeconds: 300, Topic: "Release Standup"}); err != nil {
		t.Fatal(err)
	}

	led := &fakeLedger{}
	s := NewSaverWithDependencies(cfg, notes.NewWriter(store, nil), store, led, nil, nil, nil, nil)
	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if item.NotePath != "Meetings/2026-03-01 Release Standup.md" {
		t.Fatalf("NotePath = %q", item.NotePath)
	}
	content, err := store.ReadNote(context.Background(), item.NotePath)
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if !strings.Contains(string(content), "Alice: shipping on track.") {
		t.Fatal("note is missing the transcript")
	}

	// Machine-readable record lands in the vault cache directory.
	jsonPath := vault.CacheDir + "/2026-03-01 Release Standup.json"
	if ok, _ := store.Exists(context.Background(), jsonPath); !ok {
		t.Fatalf("analysis JSON missing at %s", jsonPath)
	}

	if len(led.marked) != 1 {
		t.Fatalf("ledger marks = %v", led.marked)
	}
	archived := filepath.Join(cfg.Paths.ArchiveDir, "standup.mp4")
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("source not archived: %v", err)
	}
	for _, p := range []string{item.AudioPath, item.TranscriptPath, item.AnalysisPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("staging file %s not cleaned up", p)
		}
	}
}

func TestSaverMovesDriveSourceRemotely(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := vault.NewLocal(cfg.Paths.VaultDir, nil)
	item := newSaveItem(t, cfg.Paths.StagingDir)
	item.Origin = queue.OriginDrive
	item.RemoteID = "drive-file-1"

	remote := &fakeRemote{}
	s := NewSaverWithDependencies(cfg, notes.NewWriter(store, nil), store, nil, remote, nil, nil, nil)
	if err := s.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(remote.moved) != 1 || remote.moved[0] != "drive-file-1" {
		t.Fatalf("remote moves = %v", remote.moved)
	}
}

func TestSaverFailsWithoutInputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := vault.NewLocal(cfg.Paths.VaultDir, nil)
	s := NewSaverWithDependencies(cfg, notes.NewWriter(store, nil), store, nil, nil, nil, nil, nil)

	item := &queue.Item{SourceName: "standup.mp4"}
	if err := s.Execute(context.Background(), item); err == nil {
		t.Fatal("expected error for missing transcript and analysis")
	}
}
