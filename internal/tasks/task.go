// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks provides a background task system for write-behind work.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the current state of a background task.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task is waiting to be executed
	TaskStatusQueued TaskStatus = "Queued"

	// TaskStatusRunning indicates the task is currently executing
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusComplete indicates the task finished successfully
	TaskStatusComplete TaskStatus = "Complete"

	// TaskStatusFailed indicates the task returned an error or timed out
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCanceled indicates the task was canceled before finishing
	TaskStatusCanceled TaskStatus = "Canceled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusComplete || s == TaskStatusFailed || s == TaskStatusCanceled
}

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// Func is the work a task performs.
type Func func(ctx context.Context) error

// Task is one unit of background work.
type Task struct {
	// ID is a unique identifier for this task
	ID string

	// Key orders tasks: equal keys run sequentially in submission order
	Key string

	// Description is a human-readable description of what this task does
	Description string

	// Status is the current state of the task
	Status TaskStatus

	// Timing
	QueuedTime time.Time
	StartTime  time.Time
	EndTime    time.Time

	// Error is the error message if the task failed
	Error string

	fn     Func
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// NewTask creates a queued task.
func NewTask(key, description string, fn Func) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Key:         key,
		Description: description,
		Status:      TaskStatusQueued,
		fn:          fn,
	}
}

// =============================================================================
// TASK METHODS
// =============================================================================

// SetStatus updates the task status, rejecting invalid transitions.
// Valid transitions: Queued -> Running -> Complete/Failed/Canceled, and
// Queued -> Canceled.
func (t *Task) SetStatus(status TaskStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isValidTransition(t.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", t.Status, status)
	}
	t.Status = status
	if status.Terminal() {
		t.EndTime = time.Now()
	}
	return nil
}

func isValidTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case TaskStatusQueued:
		return to == TaskStatusRunning || to == TaskStatusCanceled
	case TaskStatusRunning:
		return to == TaskStatusComplete || to == TaskStatusFailed || to == TaskStatusCanceled
	default:
		return false
	}
}

// GetStatus returns the current task status.
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// GetError returns the failure message, if any.
func (t *Task) GetError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// markStarted moves a queued task to running. It returns false when the task
// was canceled while waiting.
func (t *Task) markStarted(cancel context.CancelFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status != TaskStatusQueued {
		return false
	}
	t.Status = TaskStatusRunning
	t.StartTime = time.Now()
	t.cancel = cancel
	return true
}

// finish records the outcome of a run.
func (t *Task) finish(status TaskStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status.Terminal() {
		return
	}
	t.Status = status
	t.EndTime = time.Now()
	if err != nil {
		t.Error = err.Error()
	}
	t.cancel = nil
}

// Cancel stops a queued or running task.
// Returns true if the task was canceled.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status.Terminal() {
		return false
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.Status = TaskStatusCanceled
	t.EndTime = time.Now()
	return true
}

// Duration returns how long the task has been running or took to complete.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// IsComplete returns true if the task has finished (success, failure, or canceled).
func (t *Task) IsComplete() bool {
	return t.GetStatus().Terminal()
}

// Summary returns a one-line summary of the task.
func (t *Task) Summary() string {
	status := t.GetStatus()
	id := t.ID
	if len(id) > 8 {
		id = id[:8]
	}

	summary := fmt.Sprintf("[%s] %s - %s", id, t.Description, status)
	if d := t.Duration(); d > 0 {
		summary += fmt.Sprintf(" (%.1fs)", d.Seconds())
	}
	if e := t.GetError(); e != "" {
		summary += ": " + e
	}
	return summary
}

// Clone returns a snapshot of the task for reading. The clone cannot be run.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:          t.ID,
		Key:         t.Key,
		Description: t.Description,
		Status:      t.Status,
		QueuedTime:  t.QueuedTime,
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
		Error:       t.Error,
	}
}
