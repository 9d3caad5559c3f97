// Package stage defines the contract between the workflow manager and the
// six pipeline stages.
package stage

import (
	"context"

	"scribe/internal/queue"
)

// Handler is one pipeline stage. Prepare checks inputs and stamps initial
// progress, Execute does the work and records artifact paths on the item,
// and HealthCheck probes the stage's external collaborators.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}

// Health is one stage's readiness verdict.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Verdict folds a health-probe result into a Health record. A nil error
// means ready; anything else carries the probe's message as detail.
func Verdict(name string, err error) Health {
	if err != nil {
		return Health{Name: name, Ready: false, Detail: err.Error()}
	}
	return Health{Name: name, Ready: true}
}
