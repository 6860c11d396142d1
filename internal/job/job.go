// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Job runs a task at a fixed interval and never overlaps with itself (singleton mode).
type Job struct {
	clock    clockwork.Clock
	interval time.Duration
	task     func(context.Context)
}

// Option configures a Job.
type Option func(*Job)

// WithClock sets the clock that drives the ticker of the Job.
func WithClock(clock clockwork.Clock) Option {
	return func(j *Job) {
		j.clock = clock
	}
}

// New creates a new Job with the given interval and task.
func New(interval time.Duration, task func(context.Context), opts ...Option) *Job {
	job := &Job{
		clock:    clockwork.NewRealClock(),
		interval: interval,
		task:     task,
	}
	for _, opt := range opts {
		opt(job)
	}
	return job
}

// Start runs the task on every tick until ctx is cancelled. A tick that fires while the previous
// run is still executing is skipped.
func (j *Job) Start(ctx context.Context) {
	if j.task == nil || j.interval <= 0 {
		return
	}

	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	// sem is a 1-slot semaphore that guards "is a run in progress?"
	sem := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			select {
			case sem <- struct{}{}:
				go func() {
					defer func() { <-sem }()
					runCtx, cancel := context.WithCancel(ctx)
					defer cancel()
					j.task(runCtx)
				}()
			default:
			}
		}
	}
}
