package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"scribe/internal/cache"
	"scribe/internal/queue"
	"scribe/internal/resources"
)

func renderQueueSummary(stats map[queue.Status]int) string {
	rows := make([][]string, 0, len(stats)+1)
	total := 0
	for _, status := range queue.AllStatuses() {
		count := stats[status]
		total += count
		if count == 0 {
			continue
		}
		rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
	}
	rows = append(rows, []string{"total", fmt.Sprintf("%d", total)})
	return renderTable(
		[]string{"Status", "Items"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}

func renderCacheStats(stats cache.Stats) string {
	rows := [][]string{
		{"Entries", fmt.Sprintf("%d", stats.Entries)},
		{"Exact hits", fmt.Sprintf("%d", stats.Hits)},
		{"Similarity hits", fmt.Sprintf("%d", stats.SimilarityHits)},
		{"Misses", fmt.Sprintf("%d", stats.Misses)},
		{"Hit rate", fmt.Sprintf("%.1f%%", stats.HitRate()*100)},
		{"Disk usage", humanize.IBytes(uint64(stats.DiskBytes))},
	}
	return renderTable(
		[]string{"Cache", "Value"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}

func renderResourceSnapshot(snap resources.Snapshot) string {
	rows := [][]string{
		{"Memory used", fmt.Sprintf("%.1f%%", snap.MemoryPercent)},
		{"Memory total", humanize.IBytes(snap.MemoryTotalBytes)},
		{"Process RSS", humanize.IBytes(snap.ProcessRSSBytes)},
		{"CPU", fmt.Sprintf("%.1f%%", snap.CPUPercent)},
	}
	return renderTable(
		[]string{"Resource", "Value"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}

func renderQueueItems(items []*queue.Item) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		progress := strings.TrimSpace(item.ProgressStage)
		if progress != "" {
			progress = fmt.Sprintf("%s %.0f%%", progress, item.ProgressPercent)
		}
		detail := item.ErrorMessage
		if detail == "" {
			detail = item.ProgressMessage
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.ID),
			item.SourceName,
			string(item.Status),
			progress,
			humanize.Time(item.UpdatedAt),
			detail,
		})
	}
	return renderTable(
		[]string{"ID", "Source", "Status", "Progress", "Updated", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}
