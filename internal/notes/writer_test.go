package notes

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scribe/internal/services/analyzer"
	"scribe/internal/vault"
)

func TestSaveMeetingWritesNoteTasksAndEntities(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(vault.NewLocal(root, nil), nil)
	writer.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	m := Meeting{
		Title:      "Migration Planning",
		Date:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Source:     "standup.mp4",
		Analysis:   sampleAnalysis,
		Transcript: "Speaker 1: Let us walk through the migration plan.",
		Entities: analyzer.Entities{
			People:       []string{"Alice", "Bob Chen"},
			Technologies: []string{"Postgres"},
		},
	}

	result, err := writer.SaveMeeting(context.Background(), m)
	if err != nil {
		t.Fatalf("SaveMeeting: %v", err)
	}
	if result.NotePath != "Meetings/2026-03-01 Migration Planning.md" {
		t.Fatalf("NotePath = %q", result.NotePath)
	}

	note, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(result.NotePath)))
	if err != nil {
		t.Fatalf("read meeting note: %v", err)
	}
	text := string(note)
	if !strings.Contains(text, "- [ ] [[Tasks/") {
		t.Fatalf("meeting note missing task links:\n%s", text)
	}
	if !strings.Contains(text, "[[Entities/Bob-Chen|Bob Chen]]") {
		t.Fatalf("meeting note missing entity backlinks:\n%s", text)
	}

	if len(result.TaskPaths) != 2 {
		t.Fatalf("TaskPaths = %v, want 2 tasks", result.TaskPaths)
	}
	task, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(result.TaskPaths[0])))
	if err != nil {
		t.Fatalf("read task note: %v", err)
	}
	if !strings.Contains(string(task), "- [ ] ") || !strings.Contains(string(task), "**Assigned To:** Alice") {
		t.Fatalf("task note content:\n%s", task)
	}

	if len(result.EntityPaths) != 3 {
		t.Fatalf("EntityPaths = %v, want 3 entities", result.EntityPaths)
	}
	entity, err := os.ReadFile(filepath.Join(root, "Entities", "Postgres.md"))
	if err != nil {
		t.Fatalf("read entity note: %v", err)
	}
	if !strings.Contains(string(entity), "type: technology") ||
		!strings.Contains(string(entity), "[[Meetings/2026-03-01 Migration Planning]] - 2026-03-01") {
		t.Fatalf("entity note content:\n%s", entity)
	}

	// Participants default to the people entities.
	if !strings.Contains(text, "Alice") {
		t.Fatalf("participants not defaulted:\n%s", text)
	}
}

func TestSaveMeetingCollisionSuffixAndEntityAppend(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(vault.NewLocal(root, nil), nil)

	m := Meeting{
		Title:      "Planning",
		Date:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Source:     "a.mp4",
		Analysis:   "1. **Meeting Summary**: First pass.",
		Transcript: "hello",
		Entities:   analyzer.Entities{People: []string{"Alice"}},
	}

	first, err := writer.SaveMeeting(context.Background(), m)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	second, err := writer.SaveMeeting(context.Background(), m)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if first.NotePath == second.NotePath {
		t.Fatalf("second save reused path %q", second.NotePath)
	}
	if second.NotePath != "Meetings/2026-03-01 Planning-2.md" {
		t.Fatalf("second NotePath = %q", second.NotePath)
	}

	entity, err := os.ReadFile(filepath.Join(root, "Entities", "Alice.md"))
	if err != nil {
		t.Fatalf("read entity note: %v", err)
	}
	refs := strings.Count(string(entity), "- [[Meetings/2026-03-01 Planning")
	if refs != 2 {
		t.Fatalf("entity references = %d, want 2:\n%s", refs, entity)
	}
}
