package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scribe/internal/batch"
	"scribe/internal/testsupport"
)

func TestProcessorRunsAllJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var processed int32
	p := batch.NewProcessor(cfg, nil, func(_ context.Context, _ string) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, nil)

	for i := 0; i < 7; i++ {
		p.Submit(context.Background(), fmt.Sprintf("rec-%d.mp4", i), 0)
	}
	jobs := p.Wait()

	if atomic.LoadInt32(&processed) != 7 {
		t.Fatalf("processed %d jobs, want 7", processed)
	}
	if len(jobs) != 7 {
		t.Fatalf("reported %d jobs, want 7", len(jobs))
	}
	for _, job := range jobs {
		if job.Status != batch.JobCompleted {
			t.Errorf("job %s status = %s", job.SourcePath, job.Status)
		}
		if job.ID == "" {
			t.Error("job missing ID")
		}
	}
}

func TestProcessorBoundsConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Batch.MaxConcurrent = 2

	var mu sync.Mutex
	var active, peak int
	p := batch.NewProcessor(cfg, nil, func(_ context.Context, _ string) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}, nil)

	for i := 0; i < 6; i++ {
		p.Submit(context.Background(), fmt.Sprintf("rec-%d.mp4", i), 0)
	}
	p.Wait()

	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestProcessorClampsConfiguredLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Batch.MaxConcurrent = 50
	p := batch.NewProcessor(cfg, nil, func(context.Context, string) error { return nil }, nil)
	if p.Limit() != 5 {
		t.Fatalf("Limit = %d, want clamp to 5", p.Limit())
	}

	cfg.Batch.MaxConcurrent = -3
	p = batch.NewProcessor(cfg, nil, func(context.Context, string) error { return nil }, nil)
	if p.Limit() != 1 {
		t.Fatalf("Limit = %d, want clamp to 1", p.Limit())
	}
}

func TestProcessorOneFailureDoesNotCancelOthers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p := batch.NewProcessor(cfg, nil, func(_ context.Context, source string) error {
		if source == "broken.mp4" {
			return errors.New("decode failure")
		}
		return nil
	}, nil)

	p.Submit(context.Background(), "broken.mp4", 0)
	p.Submit(context.Background(), "fine.mp4", 0)
	jobs := p.Wait()

	var failed, completed int
	for _, job := range jobs {
		switch job.Status {
		case batch.JobFailed:
			failed++
		case batch.JobCompleted:
			completed++
		}
	}
	if failed != 1 || completed != 1 {
		t.Fatalf("failed=%d completed=%d, want 1 and 1", failed, completed)
	}
}
