package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// PublishFunc is the callback a runner invokes for each due task. It must
// be safe to call with stale or duplicate post IDs; the workflow layer's
// PublishDue satisfies this.
type PublishFunc func(ctx context.Context, postID string) error

// Runner polls the queue for due tasks and dispatches them. It also hosts
// the safety-net sweep: a second ticker that publishes any scheduled post
// whose time has passed regardless of queue state, covering tasks lost to
// Redis restarts.
type Runner struct {
	queue        *Queue
	publish      PublishFunc
	sweep        func(ctx context.Context) (int, error)
	pollInterval time.Duration
	sweepEvery   time.Duration
}

// NewRunner creates a runner. sweep may be nil to disable the safety net
// (tests exercise the two mechanisms separately).
func NewRunner(queue *Queue, publish PublishFunc, sweep func(ctx context.Context) (int, error), pollInterval, sweepEvery time.Duration) *Runner {
	return &Runner{
		queue:        queue,
		publish:      publish,
		sweep:        sweep,
		pollInterval: pollInterval,
		sweepEvery:   sweepEvery,
	}
}

// Run blocks, polling for due tasks until ctx is cancelled. Intended to be
// started in its own goroutine at application startup.
func (r *Runner) Run(ctx context.Context) {
	poll := time.NewTicker(r.pollInterval)
	defer poll.Stop()

	var sweepC <-chan time.Time
	if r.sweep != nil {
		sweep := time.NewTicker(r.sweepEvery)
		defer sweep.Stop()
		sweepC = sweep.C
	}

	slog.Info("scheduler runner started",
		slog.Duration("poll_interval", r.pollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler runner stopped")
			return
		case <-poll.C:
			r.Poll(ctx)
		case <-sweepC:
			r.runSweep(ctx)
		}
	}
}

// Poll claims and dispatches all currently-due tasks once. Exported so
// tests and one-shot callers can drive the queue without the ticker loop.
func (r *Runner) Poll(ctx context.Context) {
	members, err := r.queue.Due(ctx)
	if err != nil {
		slog.Error("polling scheduled tasks", slog.Any("error", err))
		return
	}

	for _, member := range members {
		postID := PostID(member)
		if err := r.publish(ctx, postID); err != nil {
			// Leave the task in the queue; it will be redelivered on the
			// next poll, and the sweep covers it regardless.
			slog.Error("dispatching scheduled publish",
				slog.String("post_id", postID),
				slog.Any("error", err),
			)
			continue
		}
		if err := r.queue.Ack(ctx, member); err != nil {
			slog.Warn("acking scheduled task",
				slog.String("post_id", postID),
				slog.Any("error", err),
			)
		}
	}
}

// runSweep runs the safety-net sweep once.
func (r *Runner) runSweep(ctx context.Context) {
	n, err := r.sweep(ctx)
	if err != nil {
		slog.Error("scheduled-post sweep failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		slog.Info("scheduled-post sweep published posts", slog.Int("count", n))
	}
}
