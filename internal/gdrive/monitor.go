package gdrive

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/queue"
)

const defaultPollSchedule = "@every 1m"

// Source lists and fetches remote recordings. *Client implements it; tests
// substitute a fake.
type Source interface {
	ListNewRecordings(ctx context.Context, since time.Time) ([]RemoteFile, error)
	Download(ctx context.Context, file RemoteFile, destDir string) (string, error)
}

// Enqueuer adds downloaded recordings to the processing queue.
type Enqueuer interface {
	NewRecording(ctx context.Context, sourcePath string, origin queue.Origin, remoteID string) (*queue.Item, error)
}

// Monitor polls the Drive input folder on a cron schedule and enqueues new
// recordings after downloading them into the staging directory.
type Monitor struct {
	source   Source
	store    Enqueuer
	notifier notifications.Service
	logger   *slog.Logger

	schedule   cron.Schedule
	stagingDir string
	lastCheck  time.Time
	now        func() time.Time
}

// NewMonitor builds a Monitor from the Drive config section. The first poll
// looks one hour back so recordings uploaded just before startup are not
// missed.
func NewMonitor(cfg *config.Config, source Source, store Enqueuer, notifier notifications.Service, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	spec := cfg.Drive.PollSchedule
	if spec == "" {
		spec = defaultPollSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		source:     source,
		store:      store,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "gdrive-monitor"),
		schedule:   schedule,
		stagingDir: cfg.Paths.StagingDir,
		lastCheck:  time.Now().Add(-time.Hour),
		now:        time.Now,
	}, nil
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("drive monitor started")
	for {
		next := m.schedule.Next(m.now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}
		m.Poll(ctx)
	}
}

// Poll performs one check of the input folder. Failures are logged; the
// next scheduled poll retries.
func (m *Monitor) Poll(ctx context.Context) {
	since := m.lastCheck
	files, err := m.source.ListNewRecordings(ctx, since)
	if err != nil {
		m.logger.Warn("drive poll failed", logging.Error(err))
		return
	}
	m.lastCheck = m.now()

	for _, file := range files {
		if ctx.Err() != nil {
			return
		}
		m.ingest(ctx, file)
	}
}

func (m *Monitor) ingest(ctx context.Context, file RemoteFile) {
	localPath, err := m.source.Download(ctx, file, m.stagingDir)
	if err != nil {
		m.logger.Error("download recording",
			logging.String("name", file.Name), logging.Error(err))
		return
	}

	item, err := m.store.NewRecording(ctx, localPath, queue.OriginDrive, file.ID)
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateSource) {
			m.logger.Debug("recording already tracked", logging.String("name", file.Name))
			return
		}
		m.logger.Error("enqueue recording",
			logging.String("name", file.Name), logging.Error(err))
		return
	}
	m.logger.Info("drive recording queued",
		logging.String("name", file.Name),
		logging.Int64("item_id", item.ID))
	if m.notifier != nil {
		if err := m.notifier.NotifyFileDetected(ctx, file.Name, "Google Drive"); err != nil {
			m.logger.Debug("detection notification failed", logging.Error(err))
		}
	}
}
