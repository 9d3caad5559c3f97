package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item. A worker claims an item and
// drives it through the full chain; the done status of each stage is the
// startable status of the next.
type Status string

const (
	StatusPending      Status = "pending"
	StatusValidating   Status = "validating"
	StatusValidated    Status = "validated"
	StatusConverting   Status = "converting"
	StatusConverted    Status = "converted"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusAnalyzing    Status = "analyzing"
	StatusAnalyzed     Status = "analyzed"
	StatusExtracting   Status = "extracting"
	StatusExtracted    Status = "extracted"
	StatusSaving       Status = "saving"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Origin identifies where a recording was discovered.
type Origin string

const (
	OriginLocal Origin = "local"
	OriginDrive Origin = "drive"
)

// DaemonStopReason is the error message set when items are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusValidating,
	StatusValidated,
	StatusConverting,
	StatusConverted,
	StatusTranscribing,
	StatusTranscribed,
	StatusAnalyzing,
	StatusAnalyzed,
	StatusExtracting,
	StatusExtracted,
	StatusSaving,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusValidating:   {},
	StatusConverting:   {},
	StatusTranscribing: {},
	StatusAnalyzing:    {},
	StatusExtracting:   {},
	StatusSaving:       {},
}

// startableStatuses are the statuses a worker may claim an item from, in
// pipeline order.
var startableStatuses = []Status{
	StatusPending,
	StatusValidated,
	StatusConverted,
	StatusTranscribed,
	StatusAnalyzed,
	StatusExtracted,
}

// StartableStatuses returns the statuses a worker may claim an item from.
func StartableStatuses() []Status {
	cp := make([]Status, len(startableStatuses))
	copy(cp, startableStatuses)
	return cp
}

// ProcessingStatuses returns the in-flight statuses, in pipeline order.
func ProcessingStatuses() []Status {
	return []Status{
		StatusValidating,
		StatusConverting,
		StatusTranscribing,
		StatusAnalyzing,
		StatusExtracting,
		StatusSaving,
	}
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID              int64
	UUID            string
	SourcePath      string
	SourceName      string
	Origin          Origin
	RemoteID        string
	Status          Status
	AudioPath       string
	TranscriptPath  string
	AnalysisPath    string
	NotePath        string
	ErrorMessage    string
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	MetadataJSON    string
	LastHeartbeat   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	_, ok := processingStatuses[i.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether a status ends the pipeline for an item.
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusFailed
}

// SetProgress updates all three progress fields atomically.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetFailed marks the item as failed with the given error message.
// Clears heartbeat and sets progress fields appropriately.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressPercent = 0
	i.ProgressMessage = message
	i.LastHeartbeat = nil
	i.ProgressStage = "Failed"
}

// Display returns a human-readable name for the recording.
func (i Item) Display() string {
	if name := strings.TrimSpace(i.SourceName); name != "" {
		return name
	}
	return strings.TrimSpace(i.SourcePath)
}
