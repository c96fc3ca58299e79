package gatekeeper

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type jobResult struct {
	value interface{}
	err   error
}

type job struct {
	ctx    context.Context
	run    func(ctx context.Context) (interface{}, error)
	result chan jobResult
}

// Scheduler serializes outbound gateway calls through a single dispatch
// goroutine. Items run strictly in enqueue order, one at a time, and
// consecutive items start at least minInterval apart. The gateway enforces a
// global burst limit regardless of which credential is presented, so pacing
// lives here rather than in the pool.
type Scheduler struct {
	jobs        chan *job
	quit        chan struct{}
	closeOnce   sync.Once
	minInterval time.Duration
}

// NewScheduler starts the dispatch loop and returns a ready scheduler.
func NewScheduler(minInterval time.Duration) *Scheduler {
	s := &Scheduler{
		jobs:        make(chan *job, 256),
		quit:        make(chan struct{}),
		minInterval: minInterval,
	}
	go s.dispatch()
	return s
}

// Enqueue submits work and blocks until its result is delivered or the
// caller's context is done. A failing item only fails its own caller; the
// queue keeps draining.
func (s *Scheduler) Enqueue(ctx context.Context, run func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	select {
	case <-s.quit:
		return nil, fmt.Errorf("scheduler is closed")
	default:
	}

	j := &job{
		ctx:    ctx,
		run:    run,
		result: make(chan jobResult, 1),
	}

	select {
	case s.jobs <- j:
	case <-s.quit:
		return nil, fmt.Errorf("scheduler is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the dispatch loop. Pending items that have not started are
// abandoned; their callers unblock through their contexts.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
}

func (s *Scheduler) dispatch() {
	var lastStart time.Time
	for {
		select {
		case <-s.quit:
			return
		case j := <-s.jobs:
			if !lastStart.IsZero() {
				if wait := s.minInterval - time.Since(lastStart); wait > 0 {
					timer := time.NewTimer(wait)
					select {
					case <-timer.C:
					case <-s.quit:
						timer.Stop()
						return
					}
				}
			}
			lastStart = time.Now()
			s.execute(j)
		}
	}
}

// execute runs a single item, converting a panic into an error so one bad
// item cannot take down the dispatch loop.
func (s *Scheduler) execute(j *job) {
	defer func() {
		if rec := recover(); rec != nil {
			j.result <- jobResult{err: fmt.Errorf("scheduled request panicked: %v", rec)}
		}
	}()

	if err := j.ctx.Err(); err != nil {
		j.result <- jobResult{err: err}
		return
	}

	value, err := j.run(j.ctx)
	j.result <- jobResult{value: value, err: err}
}
