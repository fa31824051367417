// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks provides a background task system for write-behind work.
package tasks

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// TASK QUEUE
// =============================================================================

// Queue tracks every submitted task and keeps a bounded history of finished ones.
type Queue struct {
	tasks   []*Task
	running map[string]*Task

	// maxHistory is the maximum number of completed tasks to keep (0 = unlimited)
	maxHistory int

	mu sync.RWMutex

	notifyChan chan TaskNotification
}

// TaskNotification reports a task reaching a terminal state.
type TaskNotification struct {
	TaskID      string
	Key         string
	Description string
	Status      TaskStatus
	Error       string
	Duration    time.Duration
}

// NewQueue creates a task queue.
func NewQueue(maxHistory int) *Queue {
	return &Queue{
		tasks:      make([]*Task, 0),
		running:    make(map[string]*Task),
		maxHistory: maxHistory,
		notifyChan: make(chan TaskNotification, 100),
	}
}

// =============================================================================
// TASK MANAGEMENT
// =============================================================================

// Add registers a queued task.
func (q *Queue) Add(task *Task) error {
	if task.GetStatus() != TaskStatusQueued {
		return fmt.Errorf("task %s is %s, not queued", task.ID, task.GetStatus())
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	task.QueuedTime = time.Now()
	q.tasks = append(q.tasks, task)
	return nil
}

// Get retrieves a snapshot of a task by ID, or nil.
func (q *Queue) Get(id string) *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, task := range q.tasks {
		if task.ID == id {
			return task.Clone()
		}
	}
	return nil
}

// Cancel cancels a queued or running task by ID.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, task := range q.tasks {
		if task.ID == id {
			if task.Cancel() {
				delete(q.running, id)
				q.notifyLocked(task)
				return true
			}
			return false
		}
	}
	return false
}

func (q *Queue) markRunning(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running[task.ID] = task
}

// markFinished records the terminal state and trims history.
func (q *Queue) markFinished(task *Task, status TaskStatus, err error) {
	alreadyDone := task.IsComplete()
	task.finish(status, err)

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.running, task.ID)
	if !alreadyDone {
		q.notifyLocked(task)
	}
	q.cleanupLocked()
}

// =============================================================================
// QUEUE QUERIES
// =============================================================================

// All returns snapshots of all tracked tasks.
func (q *Queue) All() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Task, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Clone()
	}
	return result
}

// Pending returns snapshots of queued and running tasks.
func (q *Queue) Pending() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Task, 0)
	for _, task := range q.tasks {
		if !task.IsComplete() {
			result = append(result, task.Clone())
		}
	}
	return result
}

// Failed returns snapshots of failed tasks still in history.
func (q *Queue) Failed() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Task, 0)
	for _, task := range q.tasks {
		if task.GetStatus() == TaskStatusFailed {
			result = append(result, task.Clone())
		}
	}
	return result
}

// Count returns the total number of tracked tasks.
func (q *Queue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// RunningCount returns the number of running tasks.
func (q *Queue) RunningCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.running)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notifications delivers a TaskNotification for every task that finishes.
// Notifications are dropped when nobody keeps up with the channel.
func (q *Queue) Notifications() <-chan TaskNotification {
	return q.notifyChan
}

func (q *Queue) notifyLocked(task *Task) {
	n := TaskNotification{
		TaskID:      task.ID,
		Key:         task.Key,
		Description: task.Description,
		Status:      task.GetStatus(),
		Error:       task.GetError(),
		Duration:    task.Duration(),
	}
	select {
	case q.notifyChan <- n:
	default:
		slog.Debug("task notification dropped", "task", n.TaskID, "status", n.Status)
	}
}

// =============================================================================
// CLEANUP
// =============================================================================

// cleanupLocked drops the oldest finished tasks beyond maxHistory.
func (q *Queue) cleanupLocked() {
	if q.maxHistory <= 0 {
		return
	}

	completed := 0
	for _, task := range q.tasks {
		if task.IsComplete() {
			completed++
		}
	}
	if completed <= q.maxHistory {
		return
	}

	toRemove := completed - q.maxHistory
	kept := make([]*Task, 0, len(q.tasks)-toRemove)
	for _, task := range q.tasks {
		if toRemove > 0 && task.IsComplete() {
			toRemove--
			continue
		}
		kept = append(kept, task)
	}
	q.tasks = kept
}

// Clear removes all finished tasks from the history.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := make([]*Task, 0)
	for _, task := range q.tasks {
		if !task.IsComplete() {
			kept = append(kept, task)
		}
	}
	q.tasks = kept
}

// =============================================================================
// FORMATTING
// =============================================================================

// Summary returns a formatted summary of the queue.
func (q *Queue) Summary() string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var queued, completed, failed, canceled int
	for _, task := range q.tasks {
		switch task.GetStatus() {
		case TaskStatusQueued:
			queued++
		case TaskStatusComplete:
			completed++
		case TaskStatusFailed:
			failed++
		case TaskStatusCanceled:
			canceled++
		}
	}

	return fmt.Sprintf("Running: %d | Queued: %d | Completed: %d | Failed: %d | Canceled: %d",
		len(q.running), queued, completed, failed, canceled)
}
