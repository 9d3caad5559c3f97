package resources

import (
	"context"
	"os"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
)

func testSection() config.Resources {
	return config.Resources{
		SampleInterval:        30,
		MemoryAlertPercent:    85,
		MemoryCriticalPercent: 95,
		ProcessMemoryLimitMiB: 500,
		CPUHighPercent:        90,
		LowUsagePercent:       70,
	}
}

func TestRegistryCleanupAll(t *testing.T) {
	r := NewRegistry(logging.NewNop())

	file, _, err := r.TempFile("scribe-test-*.flac")
	if err != nil {
		t.Fatalf("TempFile: %v", err)
	}
	dir, _, err := r.TempDir("scribe-test-*")
	if err != nil {
		t.Fatalf("TempDir: %v", err)
	}

	if files, dirs := r.Counts(); files != 1 || dirs != 1 {
		t.Fatalf("counts = %d files %d dirs, want 1/1", files, dirs)
	}

	r.CleanupAll()

	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Fatalf("temp file still exists: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("temp dir still exists: %v", err)
	}
	if files, dirs := r.Counts(); files != 0 || dirs != 0 {
		t.Fatalf("counts after cleanup = %d/%d, want 0/0", files, dirs)
	}
}

func TestTempFileCleanupIsIdempotent(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	_, cleanup, err := r.TempFile("scribe-test-*")
	if err != nil {
		t.Fatalf("TempFile: %v", err)
	}
	cleanup()
	cleanup()
	if files, _ := r.Counts(); files != 0 {
		t.Fatalf("files tracked = %d, want 0", files)
	}
}

func TestMonitorClassification(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want Level
	}{
		{"idle", Snapshot{MemoryPercent: 40, CPUPercent: 20}, LevelOK},
		{"memory alert", Snapshot{MemoryPercent: 88, CPUPercent: 20}, LevelAlert},
		{"cpu alert", Snapshot{MemoryPercent: 40, CPUPercent: 92}, LevelAlert},
		{"memory critical", Snapshot{MemoryPercent: 96, CPUPercent: 20}, LevelCritical},
		{"process rss critical", Snapshot{MemoryPercent: 40, ProcessRSSBytes: 600 << 20}, LevelCritical},
	}
	m := NewMonitor(testSection(), nil, logging.NewNop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.classify(tc.snap); got != tc.want {
				t.Fatalf("classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckTriggersCleanupWhenCritical(t *testing.T) {
	registry := NewRegistry(logging.NewNop())
	file, _, err := registry.TempFile("scribe-test-*")
	if err != nil {
		t.Fatalf("TempFile: %v", err)
	}

	m := NewMonitor(testSection(), registry, logging.NewNop())
	m.probe = func(context.Context) (Snapshot, error) {
		return Snapshot{Timestamp: time.Now(), MemoryPercent: 97}, nil
	}

	_, level, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if level != LevelCritical {
		t.Fatalf("level = %v, want critical", level)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Fatal("critical check should have removed temp file")
	}
}

func TestUtilizationSignals(t *testing.T) {
	m := NewMonitor(testSection(), nil, logging.NewNop())

	quiet := Snapshot{MemoryPercent: 50, CPUPercent: 30}
	if !m.Underutilized(quiet) || m.Overloaded(quiet) {
		t.Fatal("quiet host should be underutilized and not overloaded")
	}

	busy := Snapshot{MemoryPercent: 90, CPUPercent: 30}
	if m.Underutilized(busy) || !m.Overloaded(busy) {
		t.Fatal("busy host should be overloaded")
	}

	middling := Snapshot{MemoryPercent: 75, CPUPercent: 50}
	if m.Underutilized(middling) || m.Overloaded(middling) {
		t.Fatal("middling host should be neither")
	}
}

func TestEnsureDiskSpace(t *testing.T) {
	if err := EnsureDiskSpace(t.TempDir(), 1); err != nil {
		t.Fatalf("one byte should always be available: %v", err)
	}
	err := EnsureDiskSpace(t.TempDir(), 1<<60)
	if err == nil {
		t.Fatal("an exbibyte should not be available")
	}
}
