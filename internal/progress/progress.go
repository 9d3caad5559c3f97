package progress

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"scribe/internal/logging"
)

// Stage describes one step of the processing pipeline with its contribution
// to overall progress.
type Stage struct {
	Name             string
	DisplayName      string
	EstimatedSeconds float64
	Weight           float64
}

// DefaultStages returns the pipeline stages in execution order.
func DefaultStages() []Stage {
	return []Stage{
		{Name: "validate", DisplayName: "Validating File", EstimatedSeconds: 5, Weight: 0.5},
		{Name: "convert", DisplayName: "Converting Audio", EstimatedSeconds: 30, Weight: 2},
		{Name: "transcribe", DisplayName: "Transcribing", EstimatedSeconds: 120, Weight: 3},
		{Name: "analyze", DisplayName: "AI Analysis", EstimatedSeconds: 60, Weight: 2},
		{Name: "entities", DisplayName: "Extracting Entities", EstimatedSeconds: 15, Weight: 1},
		{Name: "save", DisplayName: "Saving Results", EstimatedSeconds: 10, Weight: 0.5},
	}
}

// Session tracks one file's progress through the stages. The stage pointer
// only moves forward; updates naming an earlier stage adjust nothing.
type Session struct {
	Filename  string
	SizeBytes int64

	stages        []Stage
	current       int
	stageFraction float64
	startedAt     time.Time
	stageStarted  time.Time
	now           func() time.Time
}

// CurrentStage returns the stage the session is in.
func (s *Session) CurrentStage() Stage {
	if s.current < len(s.stages) {
		return s.stages[s.current]
	}
	return s.stages[len(s.stages)-1]
}

// Overall returns weighted progress as a percentage in [0,100].
func (s *Session) Overall() float64 {
	total := 0.0
	done := 0.0
	for i, stage := range s.stages {
		total += stage.Weight
		if i < s.current {
			done += stage.Weight
		}
	}
	done += s.CurrentStage().Weight * s.stageFraction
	if total == 0 {
		return 0
	}
	return done / total * 100
}

// ETA estimates remaining time from elapsed time and current percentage.
// The boolean is false until any progress exists.
func (s *Session) ETA() (time.Duration, bool) {
	pct := s.Overall()
	if pct <= 0 {
		return 0, false
	}
	elapsed := s.now().Sub(s.startedAt)
	if pct >= 100 {
		return 0, true
	}
	total := time.Duration(float64(elapsed) * (100 / pct))
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// FormatETA renders the ETA for log lines and status output.
func (s *Session) FormatETA() string {
	eta, ok := s.ETA()
	if !ok {
		return "calculating"
	}
	switch {
	case eta < time.Minute:
		return fmt.Sprintf("%.0fs", eta.Seconds())
	case eta < time.Hour:
		return fmt.Sprintf("%.1fm", eta.Minutes())
	default:
		return fmt.Sprintf("%.1fh", eta.Hours())
	}
}

// EstimatedTotal scales the stage estimates by file size, with a 10 MiB
// baseline below which size does not matter.
func (s *Session) EstimatedTotal() time.Duration {
	base := 0.0
	for _, stage := range s.stages {
		base += stage.EstimatedSeconds
	}
	multiplier := float64(s.SizeBytes) / (10 * 1024 * 1024)
	if multiplier < 1 {
		multiplier = 1
	}
	return time.Duration(base * multiplier * float64(time.Second))
}

// Tracker manages progress sessions for all files being processed and
// throttles progress logging.
type Tracker struct {
	logger      *slog.Logger
	logInterval time.Duration
	now         func() time.Time

	mu            sync.Mutex
	sessions      map[string]*Session
	lastLoggedAt  map[string]time.Time
	lastMilestone map[string]int
}

// NewTracker returns a tracker that logs at most every ten seconds per file,
// except when a 25% milestone is crossed.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{
		logger:        logger,
		logInterval:   10 * time.Second,
		now:           time.Now,
		sessions:      map[string]*Session{},
		lastLoggedAt:  map[string]time.Time{},
		lastMilestone: map[string]int{},
	}
}

// Start begins tracking a file and logs the opening progress line.
func (t *Tracker) Start(filename string, sizeBytes int64) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	session := &Session{
		Filename:     filename,
		SizeBytes:    sizeBytes,
		stages:       DefaultStages(),
		startedAt:    now,
		stageStarted: now,
		now:          t.now,
	}
	t.sessions[filename] = session
	t.lastLoggedAt[filename] = now
	t.lastMilestone[filename] = 0

	t.logger.Info("processing started",
		logging.String("file", filename),
		logging.String("size", fmt.Sprintf("%.1fMB", float64(sizeBytes)/(1024*1024))),
		logging.Duration("estimated", session.EstimatedTotal()))
	return session
}

// Update records fractional progress within a named stage. Naming a later
// stage advances the pointer; an earlier stage is ignored.
func (t *Tracker) Update(filename, stageName string, fraction float64, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[filename]
	if !ok {
		return
	}
	index := stageIndex(session.stages, stageName)
	if index < 0 {
		t.logger.Warn("unknown progress stage", logging.String("stage", stageName))
		return
	}
	if index < session.current {
		return
	}
	if index > session.current {
		session.current = index
		session.stageStarted = t.now()
		session.stageFraction = 0
	}
	session.stageFraction = math.Max(0, math.Min(1, fraction))
	t.logLocked(session, detail, false)
}

// CompleteStage marks a stage finished and logs its duration.
func (t *Tracker) CompleteStage(filename, stageName string, detail string) {
	t.Update(filename, stageName, 1, detail)

	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[filename]
	if !ok {
		return
	}
	stage := session.CurrentStage()
	t.logger.Info("stage complete",
		logging.String("file", filename),
		logging.String("stage", stage.Name),
		logging.Duration("took", t.now().Sub(session.stageStarted)))
}

// Complete ends tracking for a file.
func (t *Tracker) Complete(filename string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[filename]
	if !ok {
		return
	}
	elapsed := t.now().Sub(session.startedAt)
	if success {
		t.logger.Info("processing complete",
			logging.String("file", filename),
			logging.Duration("took", elapsed))
	} else {
		t.logger.Error("processing failed",
			logging.String("file", filename),
			logging.Duration("after", elapsed))
	}
	delete(t.sessions, filename)
	delete(t.lastLoggedAt, filename)
	delete(t.lastMilestone, filename)
}

// Session returns the live session for a file, if any.
func (t *Tracker) Session(filename string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[filename]
	return session, ok
}

// Active returns the filenames currently tracked.
func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.sessions))
	for name := range t.sessions {
		names = append(names, name)
	}
	return names
}

func (t *Tracker) logLocked(session *Session, detail string, force bool) {
	now := t.now()
	pct := session.Overall()
	milestone := int(pct) / 25

	crossed := milestone > t.lastMilestone[session.Filename]
	due := now.Sub(t.lastLoggedAt[session.Filename]) >= t.logInterval
	if !force && !crossed && !due {
		return
	}

	attrs := []any{
		logging.String("file", session.Filename),
		logging.String("stage", session.CurrentStage().Name),
		logging.String("percent", fmt.Sprintf("%.1f", pct)),
		logging.String("eta", session.FormatETA()),
	}
	if detail != "" {
		attrs = append(attrs, logging.String("detail", detail))
	}
	if crossed || force {
		t.logger.Info("progress", attrs...)
		if crossed {
			t.lastMilestone[session.Filename] = milestone
		}
	} else {
		t.logger.Debug("progress", attrs...)
	}
	t.lastLoggedAt[session.Filename] = now
}

func stageIndex(stages []Stage, name string) int {
	name = strings.ToLower(name)
	for i, stage := range stages {
		if stage.Name == name {
			return i
		}
	}
	return -1
}
