package progress

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturedRecord struct {
	level slog.Level
	msg   string
}

type capturingHandler struct {
	mu      sync.Mutex
	records []capturedRecord
}

func (h *capturingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capturingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, capturedRecord{level: r.Level, msg: r.Message})
	return nil
}

func (h *capturingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capturingHandler) WithGroup(string) slog.Handler      { return h }

func (h *capturingHandler) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.level == level && r.msg == msg {
			n++
		}
	}
	return n
}

func newTestTracker(t *testing.T) (*Tracker, *fakeClock, *capturingHandler) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	handler := &capturingHandler{}
	tracker := NewTracker(slog.New(handler))
	tracker.now = clock.Now
	return tracker, clock, handler
}

func TestOverallIsWeighted(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	session := tracker.Start("standup.mp4", 0)

	if got := session.Overall(); got != 0 {
		t.Fatalf("initial overall = %v, want 0", got)
	}

	// Total weight is 9; a finished validate stage contributes 0.5.
	tracker.Update("standup.mp4", "validate", 1, "")
	if got := session.Overall(); got < 5.5 || got > 5.6 {
		t.Fatalf("overall after validate = %v, want ~5.56", got)
	}

	tracker.Update("standup.mp4", "transcribe", 0.5, "")
	// validate 0.5 + convert 2 + half of transcribe 1.5 = 4 of 9.
	if got := session.Overall(); got < 44.4 || got > 44.5 {
		t.Fatalf("overall mid-transcribe = %v, want ~44.44", got)
	}
}

func TestStagePointerNeverRegresses(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	session := tracker.Start("standup.mp4", 0)

	tracker.Update("standup.mp4", "transcribe", 0.5, "")
	before := session.Overall()

	tracker.Update("standup.mp4", "convert", 0.9, "")
	if got := session.Overall(); got != before {
		t.Fatalf("overall changed from %v to %v after stale stage update", before, got)
	}
	if session.CurrentStage().Name != "transcribe" {
		t.Fatalf("stage regressed to %s", session.CurrentStage().Name)
	}
}

func TestCompletingEveryStageReachesFullProgress(t *testing.T) {
	tracker, _, handler := newTestTracker(t)
	session := tracker.Start("allhands.mp4", 0)

	previous := session.Overall()
	for _, stage := range DefaultStages() {
		tracker.CompleteStage("allhands.mp4", stage.Name, "")
		if got := session.Overall(); got < previous {
			t.Fatalf("overall regressed from %v to %v after %s", previous, got, stage.Name)
		} else {
			previous = got
		}
	}
	if got := session.Overall(); got != 100 {
		t.Fatalf("overall after final stage = %v, want 100", got)
	}
	if got := handler.count(slog.LevelInfo, "stage complete"); got != len(DefaultStages()) {
		t.Fatalf("stage completion logs = %d, want %d", got, len(DefaultStages()))
	}
}

func TestETA(t *testing.T) {
	tracker, clock, _ := newTestTracker(t)
	session := tracker.Start("planning.mkv", 0)

	if _, ok := session.ETA(); ok {
		t.Fatal("ETA should be unknown before any progress")
	}
	if got := session.FormatETA(); got != "calculating" {
		t.Fatalf("FormatETA = %q, want calculating", got)
	}

	clock.Advance(30 * time.Second)
	// convert at 0.875 puts overall progress at exactly 25%.
	tracker.Update("planning.mkv", "convert", 0.875, "")

	eta, ok := session.ETA()
	if !ok {
		t.Fatal("ETA should be available")
	}
	// elapsed*(100/25)-elapsed = 90s.
	if eta < 89*time.Second || eta > 91*time.Second {
		t.Fatalf("eta = %v, want ~90s", eta)
	}
	if got := session.FormatETA(); got != "1.5m" {
		t.Fatalf("FormatETA = %q, want 1.5m", got)
	}
}

func TestEstimatedTotalScalesWithSize(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	small := tracker.Start("small.mp4", 1024)
	large := tracker.Start("large.mp4", 100*1024*1024)

	if got := small.EstimatedTotal(); got != 240*time.Second {
		t.Fatalf("small estimate = %v, want 240s", got)
	}
	if got := large.EstimatedTotal(); got != 2400*time.Second {
		t.Fatalf("large estimate = %v, want 2400s", got)
	}
}

func TestProgressLoggingThrottledWithMilestones(t *testing.T) {
	tracker, clock, handler := newTestTracker(t)
	tracker.Start("retro.mov", 0)

	// Inside the throttle window, no milestone crossed: silent.
	tracker.Update("retro.mov", "validate", 1, "")
	if got := handler.count(slog.LevelInfo, "progress"); got != 0 {
		t.Fatalf("progress logs = %d, want 0 inside throttle window", got)
	}

	// Past the window a routine update logs at debug.
	clock.Advance(11 * time.Second)
	tracker.Update("retro.mov", "convert", 0.1, "")
	if got := handler.count(slog.LevelDebug, "progress"); got != 1 {
		t.Fatalf("debug progress logs = %d, want 1", got)
	}

	// Crossing 25% forces an info line even inside the window.
	tracker.Update("retro.mov", "convert", 0.875, "")
	if got := handler.count(slog.LevelInfo, "progress"); got != 1 {
		t.Fatalf("info progress logs = %d, want 1 at milestone", got)
	}
}

func TestCompleteRemovesSession(t *testing.T) {
	tracker, _, handler := newTestTracker(t)
	tracker.Start("sync.mp4", 0)
	tracker.Complete("sync.mp4", true)

	if _, ok := tracker.Session("sync.mp4"); ok {
		t.Fatal("session should be gone after completion")
	}
	if got := handler.count(slog.LevelInfo, "processing complete"); got != 1 {
		t.Fatalf("completion logs = %d, want 1", got)
	}
	if len(tracker.Active()) != 0 {
		t.Fatal("no sessions should remain active")
	}
}
