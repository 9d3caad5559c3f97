// Package batch runs one-off processing of many recordings at once with
// bounded, resource-adaptive concurrency.
package batch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/resources"
)

const (
	minConcurrent     = 1
	maxConcurrent     = 5
	defaultConcurrent = 3

	resizeInterval = 30 * time.Second
)

// JobStatus tracks a submission through its lifecycle.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one recording inside a batch.
type Job struct {
	ID          string
	SourcePath  string
	Priority    int
	Status      JobStatus
	Err         error
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Runner processes a single recording end to end.
type Runner func(ctx context.Context, sourcePath string) error

// Processor fans submissions out to a bounded worker pool. The bound adapts
// to host load: sustained pressure shrinks it, idle headroom grows it back,
// always within [1,5].
type Processor struct {
	runner  Runner
	monitor *resources.Monitor
	logger  *slog.Logger

	sem   *semaphore.Weighted
	limit int

	mu       sync.Mutex
	reserved int
	jobs     map[string]*Job
	wg       sync.WaitGroup
}

// NewProcessor builds a batch processor around the given runner.
func NewProcessor(cfg *config.Config, monitor *resources.Monitor, runner Runner, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := cfg.Batch.MaxConcurrent
	if limit == 0 {
		limit = defaultConcurrent
	}
	if limit < minConcurrent {
		limit = minConcurrent
	}
	if limit > maxConcurrent {
		limit = maxConcurrent
	}
	return &Processor{
		runner:  runner,
		monitor: monitor,
		logger:  logging.NewComponentLogger(logger, "batch"),
		sem:     semaphore.NewWeighted(int64(limit)),
		limit:   limit,
		jobs:    make(map[string]*Job),
	}
}

// Submit queues one recording and returns its job immediately. The job runs
// as soon as a concurrency slot frees up; its failure never affects the
// other jobs in the batch.
func (p *Processor) Submit(ctx context.Context, sourcePath string, priority int) *Job {
	job := &Job{
		ID:          uuid.NewString(),
		SourcePath:  sourcePath,
		Priority:    priority,
		Status:      JobQueued,
		SubmittedAt: time.Now(),
	}
	p.mu.Lock()
	p.jobs[job.ID] = job
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, job)
	return job
}

func (p *Processor) run(ctx context.Context, job *Job) {
	defer p.wg.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.finish(job, err)
		return
	}
	defer p.sem.Release(1)

	p.mu.Lock()
	job.Status = JobRunning
	job.StartedAt = time.Now()
	p.mu.Unlock()

	p.finish(job, p.runner(ctx, job.SourcePath))
}

func (p *Processor) finish(job *Job, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job.FinishedAt = time.Now()
	job.Err = err
	if err != nil {
		job.Status = JobFailed
		p.logger.Warn("batch job failed",
			logging.String("job_id", job.ID),
			logging.String("source", job.SourcePath),
			logging.Error(err))
		return
	}
	job.Status = JobCompleted
}

// Wait blocks until every submitted job finished and returns them sorted by
// submission time.
func (p *Processor) Wait() []*Job {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Job, 0, len(p.jobs))
	for _, job := range p.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// Limit returns the current effective concurrency bound.
func (p *Processor) Limit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit - p.reserved
}

// Run adapts the concurrency bound to host load until the context ends.
func (p *Processor) Run(ctx context.Context) {
	if p.monitor == nil {
		return
	}
	ticker := time.NewTicker(resizeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.resize(ctx)
		}
	}
}

// resize shrinks the pool by parking a semaphore token when the host is
// overloaded and releases a parked token when usage drops.
func (p *Processor) resize(ctx context.Context) {
	snap, err := p.monitor.Sample(ctx)
	if err != nil {
		p.logger.Debug("resource sample failed", logging.Error(err))
		return
	}

	switch {
	case p.monitor.Overloaded(snap):
		p.mu.Lock()
		canShrink := p.limit-p.reserved > minConcurrent
		if canShrink {
			p.reserved++
		}
		p.mu.Unlock()
		if !canShrink {
			return
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.mu.Lock()
			p.reserved--
			p.mu.Unlock()
			return
		}
		p.logger.Info("shrinking batch concurrency",
			logging.Int("limit", p.Limit()),
			logging.Float64("memory_percent", snap.MemoryPercent),
			logging.Float64("cpu_percent", snap.CPUPercent))
	case p.monitor.Underutilized(snap):
		p.mu.Lock()
		grow := p.reserved > 0
		if grow {
			p.reserved--
		}
		p.mu.Unlock()
		if !grow {
			return
		}
		p.sem.Release(1)
		p.logger.Info("growing batch concurrency", logging.Int("limit", p.Limit()))
	}
}
