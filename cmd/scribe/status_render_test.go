package main

import (
	"strings"
	"testing"
	"time"

	"scribe/internal/cache"
	"scribe/internal/queue"
	"scribe/internal/resources"
)

func TestRenderQueueSummarySkipsEmptyStatuses(t *testing.T) {
	out := renderQueueSummary(map[queue.Status]int{
		queue.StatusPending:   2,
		queue.StatusCompleted: 1,
	})
	if !strings.Contains(out, "pending") || !strings.Contains(out, "completed") {
		t.Fatalf("expected pending and completed rows:\n%s", out)
	}
	if strings.Contains(out, "transcribing") {
		t.Fatalf("expected empty statuses to be omitted:\n%s", out)
	}
	if !strings.Contains(out, "total") {
		t.Fatalf("expected total row:\n%s", out)
	}
}

func TestRenderCacheStats(t *testing.T) {
	out := renderCacheStats(cache.Stats{
		Entries:        4,
		Hits:           6,
		SimilarityHits: 2,
		Misses:         2,
		DiskBytes:      2048,
	})
	if !strings.Contains(out, "80.0%") {
		t.Fatalf("expected hit rate row:\n%s", out)
	}
	if !strings.Contains(out, "2.0 KiB") {
		t.Fatalf("expected humanized disk usage:\n%s", out)
	}
}

func TestRenderQueueItemsShowsErrorDetail(t *testing.T) {
	items := []*queue.Item{
		{
			ID:              7,
			SourceName:      "standup.mp4",
			Status:          queue.StatusFailed,
			ErrorMessage:    "whisper API unreachable",
			ProgressStage:   "Transcribing",
			ProgressPercent: 40,
			UpdatedAt:       time.Now().Add(-time.Minute),
		},
	}
	out := renderQueueItems(items)
	if !strings.Contains(out, "standup.mp4") {
		t.Fatalf("expected source name:\n%s", out)
	}
	if !strings.Contains(out, "whisper API unreachable") {
		t.Fatalf("expected error detail:\n%s", out)
	}
	if !strings.Contains(out, "Transcribing 40%") {
		t.Fatalf("expected progress column:\n%s", out)
	}
}

func TestRenderResourceSnapshot(t *testing.T) {
	out := renderResourceSnapshot(resources.Snapshot{
		MemoryPercent:    61.5,
		MemoryTotalBytes: 16 << 30,
		ProcessRSSBytes:  256 << 20,
		CPUPercent:       12.3,
	})
	if !strings.Contains(out, "61.5%") || !strings.Contains(out, "16 GiB") {
		t.Fatalf("unexpected snapshot rendering:\n%s", out)
	}
}
