// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks provides a background task system for write-behind work.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRunnerStopped is returned by Submit after Stop.
var ErrRunnerStopped = errors.New("task runner stopped")

// =============================================================================
// TASK RUNNER
// =============================================================================

// Runner executes tasks on a fixed set of lanes. A task's key picks its lane,
// so tasks with the same key never overlap and run in submission order.
type Runner struct {
	queue       *Queue
	lanes       []*lane
	taskTimeout time.Duration

	wg      sync.WaitGroup
	stop    chan struct{}
	stopped atomic.Bool
	started atomic.Bool

	// pending counts submitted tasks that have not finished
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

// lane is an unbounded FIFO served by one goroutine.
type lane struct {
	mu     sync.Mutex
	items  []*Task
	signal chan struct{}
}

// NewRunner creates a runner with the given number of lanes.
// taskTimeout bounds each task (0 = no timeout).
func NewRunner(queue *Queue, lanes int, taskTimeout time.Duration) *Runner {
	if lanes <= 0 {
		lanes = 4
	}
	r := &Runner{
		queue:       queue,
		lanes:       make([]*lane, lanes),
		taskTimeout: taskTimeout,
		stop:        make(chan struct{}),
		idle:        closedChan(),
	}
	for i := range r.lanes {
		r.lanes[i] = &lane{signal: make(chan struct{}, 1)}
	}
	return r
}

// Queue returns the queue tracking this runner's tasks.
func (r *Runner) Queue() *Queue {
	return r.queue
}

// =============================================================================
// RUNNER LIFECYCLE
// =============================================================================

// Start launches the lane workers. Calling Start twice is a no-op.
func (r *Runner) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	for _, l := range r.lanes {
		r.wg.Add(1)
		go r.work(l)
	}
}

// Stop stops accepting tasks, lets running tasks finish, and cancels
// anything still waiting in a lane.
func (r *Runner) Stop() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	close(r.stop)
	r.wg.Wait()

	for _, l := range r.lanes {
		for _, task := range l.take() {
			task.Cancel()
			r.queue.markFinished(task, TaskStatusCanceled, nil)
			r.done()
		}
	}
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit enqueues a task. It never blocks.
func (r *Runner) Submit(task *Task) error {
	if r.stopped.Load() {
		return ErrRunnerStopped
	}
	if err := r.queue.Add(task); err != nil {
		return err
	}

	r.mu.Lock()
	if r.pending == 0 {
		r.idle = make(chan struct{})
	}
	r.pending++
	r.mu.Unlock()

	l := r.laneFor(task.Key)
	l.mu.Lock()
	l.items = append(l.items, task)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return nil
}

// Drain blocks until every submitted task has finished or ctx is done.
func (r *Runner) Drain(ctx context.Context) error {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingCount returns the number of submitted tasks not yet finished.
func (r *Runner) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *Runner) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending--
	if r.pending == 0 {
		close(r.idle)
	}
}

func (r *Runner) laneFor(key string) *lane {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return r.lanes[h.Sum32()%uint32(len(r.lanes))]
}

// =============================================================================
// TASK PROCESSING
// =============================================================================

func (l *lane) take() []*Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := l.items
	l.items = nil
	return items
}

func (r *Runner) work(l *lane) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stop:
			return
		case <-l.signal:
		}

		batch := l.take()
		for i, task := range batch {
			select {
			case <-r.stop:
				// Put the rest of the batch back so Stop can cancel it.
				l.mu.Lock()
				l.items = append(append([]*Task(nil), batch[i:]...), l.items...)
				l.mu.Unlock()
				return
			default:
			}
			r.execute(task)
			r.done()
		}
	}
}

// execute runs a single task and records its outcome.
func (r *Runner) execute(task *Task) {
	var ctx context.Context
	var cancel context.CancelFunc
	if r.taskTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.taskTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	if !task.markStarted(cancel) {
		// Canceled while queued.
		r.queue.markFinished(task, TaskStatusCanceled, nil)
		return
	}
	r.queue.markRunning(task)

	err := runTask(ctx, task)

	switch {
	case err == nil:
		r.queue.markFinished(task, TaskStatusComplete, nil)
	case errors.Is(ctx.Err(), context.Canceled):
		r.queue.markFinished(task, TaskStatusCanceled, nil)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.queue.markFinished(task, TaskStatusFailed, fmt.Errorf("task timeout after %v: %w", r.taskTimeout, err))
	default:
		r.queue.markFinished(task, TaskStatusFailed, err)
	}
}

// runTask calls the task function, turning a panic into an error so one bad
// task cannot take down its lane.
func runTask(ctx context.Context, task *Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("task panicked", "task", task.ID, "description", task.Description, "panic", p)
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	if task.fn == nil {
		return errors.New("task has no work function")
	}
	return task.fn(ctx)
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
