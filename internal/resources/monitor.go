package resources

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/services"
)

// Snapshot is a point-in-time view of system and process resource usage.
type Snapshot struct {
	Timestamp        time.Time
	MemoryPercent    float64
	MemoryTotalBytes uint64
	ProcessRSSBytes  uint64
	CPUPercent       float64
}

// Level classifies a snapshot against the configured thresholds.
type Level int

const (
	LevelOK Level = iota
	LevelAlert
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelAlert:
		return "alert"
	case LevelCritical:
		return "critical"
	default:
		return "ok"
	}
}

// Monitor samples memory and CPU usage, classifies the load, and asks the
// registry to drop temporary artifacts when the host is under pressure.
type Monitor struct {
	section  config.Resources
	registry *Registry
	logger   *slog.Logger

	// probe is swapped out in tests.
	probe func(ctx context.Context) (Snapshot, error)

	lastRSS uint64
}

// NewMonitor builds a monitor over the live gopsutil probes.
func NewMonitor(section config.Resources, registry *Registry, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		section:  section,
		registry: registry,
		logger:   logger,
		probe:    sampleHost,
	}
}

// Sample returns the current resource snapshot.
func (m *Monitor) Sample(ctx context.Context) (Snapshot, error) {
	snap, err := m.probe(ctx)
	if err != nil {
		return Snapshot{}, services.Wrap(services.ErrResource, "", "resource_sample", "sample host resources", err)
	}
	return snap, nil
}

// Check samples resources, logs threshold crossings, and triggers cleanup at
// critical levels. It returns the snapshot and its classification.
func (m *Monitor) Check(ctx context.Context) (Snapshot, Level, error) {
	snap, err := m.Sample(ctx)
	if err != nil {
		return Snapshot{}, LevelOK, err
	}

	level := m.classify(snap)
	rssMiB := snap.ProcessRSSBytes / (1 << 20)
	switch level {
	case LevelCritical:
		m.logger.Warn("critical resource usage",
			logging.Float64("memory_percent", snap.MemoryPercent),
			logging.Uint64("process_rss_mib", rssMiB))
		if m.registry != nil {
			m.registry.CleanupAll()
		}
	case LevelAlert:
		m.logger.Warn("high resource usage",
			logging.Float64("memory_percent", snap.MemoryPercent),
			logging.Float64("cpu_percent", snap.CPUPercent))
	default:
		// Surface notable growth in our own footprint.
		if snap.ProcessRSSBytes > m.lastRSS+(100<<20) {
			m.logger.Info("process memory usage",
				logging.Uint64("rss_mib", rssMiB),
				logging.Float64("system_percent", snap.MemoryPercent))
		}
	}
	m.lastRSS = snap.ProcessRSSBytes
	return snap, level, nil
}

// Run checks on the configured interval until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	interval := time.Duration(m.section.SampleInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := m.Check(ctx); err != nil {
				m.logger.Debug("resource check failed", logging.Error(err))
			}
		}
	}
}

func (m *Monitor) classify(snap Snapshot) Level {
	limitBytes := uint64(m.section.ProcessMemoryLimitMiB) << 20
	if snap.MemoryPercent >= m.section.MemoryCriticalPercent {
		return LevelCritical
	}
	if limitBytes > 0 && snap.ProcessRSSBytes > limitBytes {
		return LevelCritical
	}
	if snap.MemoryPercent >= m.section.MemoryAlertPercent || snap.CPUPercent >= m.section.CPUHighPercent {
		return LevelAlert
	}
	return LevelOK
}

// Underutilized reports whether both memory and CPU sit below the low-usage
// threshold, the signal the batch processor uses to widen concurrency.
func (m *Monitor) Underutilized(snap Snapshot) bool {
	return snap.MemoryPercent < m.section.LowUsagePercent && snap.CPUPercent < m.section.LowUsagePercent
}

// Overloaded reports whether the snapshot should shrink batch concurrency.
func (m *Monitor) Overloaded(snap Snapshot) bool {
	return snap.MemoryPercent >= m.section.MemoryAlertPercent || snap.CPUPercent >= m.section.CPUHighPercent
}

func sampleHost(ctx context.Context) (Snapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Timestamp:        time.Now(),
		MemoryPercent:    vm.UsedPercent,
		MemoryTotalBytes: vm.Total,
	}

	if percents, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			snap.ProcessRSSBytes = info.RSS
		}
	}
	return snap, nil
}

// EnsureDiskSpace verifies the filesystem containing path has at least
// required bytes free.
func EnsureDiskSpace(path string, required uint64) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return services.Wrap(services.ErrResource, "", "disk_check", "inspect free disk space", err)
	}
	if usage.Free < required {
		return services.New(services.ErrResource, "", "disk_check", "insufficient disk space", nil).
			WithContext("path", path).
			WithContext("free", humanize.Bytes(usage.Free)).
			WithContext("required", humanize.Bytes(required))
	}
	return nil
}
