package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scribe/internal/logging"
	"scribe/internal/services/analyzer"
	"scribe/internal/vault"
)

// SaveResult reports where the note writer placed everything for one
// meeting.
type SaveResult struct {
	NotePath    string
	TaskPaths   []string
	EntityPaths []string
}

// Writer renders meeting notes and persists them, along with their entity
// and task notes, through a vault.Storage.
type Writer struct {
	store  vault.Storage
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter returns a Writer that saves into the given storage.
func NewWriter(store vault.Storage, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Writer{store: store, logger: logger, now: time.Now}
}

// SaveMeeting writes the meeting note plus its derived task and entity
// notes. Task and entity note failures are logged and skipped; only a
// failure to write the meeting note itself fails the save.
func (w *Writer) SaveMeeting(ctx context.Context, m Meeting) (*SaveResult, error) {
	if err := w.store.EnsureLayout(ctx); err != nil {
		return nil, err
	}

	if m.Date.IsZero() {
		m.Date = w.now()
	}
	if strings.TrimSpace(m.Title) == "" {
		m.Title = "Meeting"
	}
	if len(m.Participants) == 0 {
		m.Participants = limitNames(m.Entities.People, 5)
	}

	fileName, err := MeetingFileName(m.Date, m.Title, w.existsIn(ctx, vault.MeetingsDir))
	if err != nil {
		return nil, err
	}
	ref := MeetingRef{
		NoteBase: vault.MeetingsDir + "/" + strings.TrimSuffix(fileName, ".md"),
		Date:     m.Date.Format("2006-01-02"),
	}

	result := &SaveResult{NotePath: vault.MeetingsDir + "/" + fileName}

	links, taskPaths := w.writeTaskNotes(ctx, m, ref)
	result.TaskPaths = taskPaths

	content, err := Render(m)
	if err != nil {
		return nil, err
	}
	content = InjectTaskLinks(content, links)
	content = appendEntityLinks(content, m.Entities)

	if err := w.store.WriteNote(ctx, result.NotePath, content); err != nil {
		return nil, err
	}
	w.logger.Info("meeting note saved",
		logging.String("path", result.NotePath),
		logging.Int("tasks", len(taskPaths)))

	result.EntityPaths = w.writeEntityNotes(ctx, m.Entities, ref)
	return result, nil
}

func (w *Writer) writeTaskNotes(ctx context.Context, m Meeting, ref MeetingRef) ([]TaskLink, []string) {
	items := ExtractActionItems(m.Analysis)
	var links []TaskLink
	var paths []string
	for _, item := range items {
		fileName, err := uniqueFileName(TaskFileBase(m.Date, item), w.existsIn(ctx, vault.TasksDir))
		if err != nil {
			w.logger.Warn("task note name lookup failed", logging.Error(err))
			continue
		}
		relPath := vault.TasksDir + "/" + fileName
		if err := w.store.WriteNote(ctx, relPath, RenderTaskNote(item, ref, w.now())); err != nil {
			w.logger.Warn("task note write failed",
				logging.String("path", relPath), logging.Error(err))
			continue
		}
		links = append(links, TaskLink{
			NoteBase: vault.TasksDir + "/" + strings.TrimSuffix(fileName, ".md"),
			Text:     item.Text,
		})
		paths = append(paths, relPath)
	}
	return links, paths
}

func (w *Writer) writeEntityNotes(ctx context.Context, entities analyzer.Entities, ref MeetingRef) []string {
	var paths []string
	categories := entities.Categories()
	for _, category := range []string{"people", "companies", "technologies"} {
		for _, name := range categories[category] {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			relPath := vault.EntitiesDir + "/" + EntityFileName(name) + ".md"
			if err := w.upsertEntityNote(ctx, relPath, category, name, ref); err != nil {
				w.logger.Warn("entity note update failed",
					logging.String("path", relPath), logging.Error(err))
				continue
			}
			paths = append(paths, relPath)
		}
	}
	return paths
}

func (w *Writer) upsertEntityNote(ctx context.Context, relPath, category, name string, ref MeetingRef) error {
	existing, err := w.store.Exists(ctx, relPath)
	if err != nil {
		return err
	}
	if !existing {
		return w.store.WriteNote(ctx, relPath, RenderEntityNote(category, name, ref, w.now()))
	}
	content, err := w.store.ReadNote(ctx, relPath)
	if err != nil {
		return err
	}
	updated := AppendMeetingReference(content, ref, w.now())
	if string(updated) == string(content) {
		return nil
	}
	return w.store.WriteNote(ctx, relPath, updated)
}

func (w *Writer) existsIn(ctx context.Context, dir string) func(string) (bool, error) {
	return func(name string) (bool, error) {
		return w.store.Exists(ctx, dir+"/"+name)
	}
}

func limitNames(names []string, max int) []string {
	if len(names) <= max {
		return names
	}
	return names[:max]
}

func appendEntityLinks(content []byte, entities analyzer.Entities) []byte {
	categories := entities.Categories()
	var b strings.Builder
	for _, section := range []struct {
		label    string
		category string
	}{
		{"People", "people"},
		{"Companies", "companies"},
		{"Technologies", "technologies"},
	} {
		names := categories[section.category]
		if len(names) == 0 {
			continue
		}
		links := make([]string, 0, len(names))
		for _, name := range names {
			links = append(links, Backlink(vault.EntitiesDir, name))
		}
		fmt.Fprintf(&b, "**%s:** %s\n", section.label, strings.Join(links, ", "))
	}
	if b.Len() == 0 {
		return content
	}
	return append(content, []byte("\n## Entities\n\n"+b.String())...)
}
