// Package queue holds the in-memory task queue and its state machine. Every
// read and mutation goes through one mutex, held only for the duration of the
// call and never across subprocess I/O. Callers always receive copies, never
// live references into the queue.
package queue

import (
	"sync"
	"time"

	"github.com/Reuben-Percival/parut/pkg/models"
	"github.com/Reuben-Percival/parut/pkg/progress"
)

// TaskQueue is the ordered collection of tasks plus the set of ids with a
// pending cancellation request. Order is dispatch priority: claiming always
// takes the head-most queued task.
type TaskQueue struct {
	mu              sync.Mutex
	tasks           []models.Task
	nextID          int64
	cancelRequested map[int64]struct{}
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		cancelRequested: make(map[int64]struct{}),
	}
}

// Add enqueues a new task at the tail and returns its id. Ids are assigned
// from a monotonic counter and never reused.
func (q *TaskQueue) Add(kind models.TaskKind, target string) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextID
	q.nextID++
	q.tasks = append(q.tasks, models.Task{
		ID:     id,
		Kind:   kind,
		Target: target,
		Status: models.QueuedTaskStatus,
	})
	return id
}

// Snapshot returns a deep copy of every task for display. The snapshot is
// consistent at call time only; readers re-poll for updates.
func (q *TaskQueue) Snapshot() []models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshot := make([]models.Task, len(q.tasks))
	for i, t := range q.tasks {
		snapshot[i] = cloneTask(t)
	}
	return snapshot
}

// Get returns a copy of one task by id.
func (q *TaskQueue) Get(id int64) (models.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.ID == id {
			return cloneTask(t), true
		}
	}
	return models.Task{}, false
}

// ClaimNextQueued atomically marks the head-most queued task as running and
// returns a copy of it. Holding the queue lock across the find-and-mark is
// what guarantees at most one claim per task under concurrent schedulers.
func (q *TaskQueue) ClaimNextQueued() (models.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.tasks {
		if q.tasks[i].Status != models.QueuedTaskStatus {
			continue
		}
		now := time.Now()
		q.tasks[i].Status = models.RunningTaskStatus
		q.tasks[i].StartedAt = &now
		q.tasks[i].FinishedAt = nil
		q.tasks[i].Phase = "Preparing"
		return cloneTask(q.tasks[i]), true
	}
	return models.Task{}, false
}

// RunningCount reports how many tasks are currently running.
func (q *TaskQueue) RunningCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, t := range q.tasks {
		if t.Status == models.RunningTaskStatus {
			count++
		}
	}
	return count
}

// Finalize moves a task to a terminal status and stamps FinishedAt.
// Non-terminal statuses are rejected as a no-op.
func (q *TaskQueue) Finalize(id int64, status models.TaskStatus, errMsg string) {
	if !status.Terminal() {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.tasks {
		if q.tasks[i].ID != id {
			continue
		}
		now := time.Now()
		q.tasks[i].Status = status
		q.tasks[i].ErrorMsg = errMsg
		q.tasks[i].FinishedAt = &now
		return
	}
}

// AppendOutput records one line of subprocess output, deriving progress and
// phase from it. Both signals are sticky: a line that matches neither leaves
// the previous values in place. limit caps the buffer; oldest lines drop
// first. A limit of 0 disables truncation.
func (q *TaskQueue) AppendOutput(id int64, line string, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.appendLocked(id, line, limit)
}

func (q *TaskQueue) appendLocked(id int64, line string, limit int) {
	for i := range q.tasks {
		if q.tasks[i].ID != id {
			continue
		}
		if fraction, ok := progress.ParseProgress(line); ok {
			q.tasks[i].Progress = &fraction
		}
		if phase, ok := progress.ParsePhase(line); ok {
			q.tasks[i].Phase = phase
		}
		q.tasks[i].Output = append(q.tasks[i].Output, line)
		q.tasks[i].OutputTotal++
		if limit > 0 && len(q.tasks[i].Output) > limit {
			drop := len(q.tasks[i].Output) - limit
			q.tasks[i].Output = append([]string(nil), q.tasks[i].Output[drop:]...)
		}
		return
	}
}

// CancelQueued removes a task that has not started yet. Queued work is simply
// dropped; there is no Canceled state for tasks that never ran.
func (q *TaskQueue) CancelQueued(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.tasks {
		if t.ID == id && t.Status == models.QueuedTaskStatus {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// RequestCancel records a cancellation intent against a running task. The
// intent is advisory until the task's execution goroutine consumes it via
// TakeCancelRequest. The synthetic status line it appends honors the same
// output cap as subprocess output. Returns false if the task is not running.
func (q *TaskQueue) RequestCancel(id int64, limit int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	running := false
	for _, t := range q.tasks {
		if t.ID == id && t.Status == models.RunningTaskStatus {
			running = true
			break
		}
	}
	if !running {
		return false
	}
	q.cancelRequested[id] = struct{}{}
	q.appendLocked(id, "Cancellation requested...", limit)
	return true
}

// IsCancelRequested reports a pending cancellation without consuming it.
func (q *TaskQueue) IsCancelRequested(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelRequested[id]
	return ok
}

// TakeCancelRequest consumes a pending cancellation. It returns true at most
// once per request, which is what lets a cancel win over a racing natural
// exit exactly one time.
func (q *TaskQueue) TakeCancelRequest(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.cancelRequested[id]; !ok {
		return false
	}
	delete(q.cancelRequested, id)
	return true
}

// MoveUp swaps a queued task with its nearest queued predecessor.
func (q *TaskQueue) MoveUp(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.queuedIndexLocked(id)
	if idx < 0 {
		return false
	}
	for prev := idx - 1; prev >= 0; prev-- {
		if q.tasks[prev].Status == models.QueuedTaskStatus {
			q.tasks[idx], q.tasks[prev] = q.tasks[prev], q.tasks[idx]
			return true
		}
	}
	return false
}

// MoveDown swaps a queued task with its nearest queued successor.
func (q *TaskQueue) MoveDown(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.queuedIndexLocked(id)
	if idx < 0 {
		return false
	}
	for next := idx + 1; next < len(q.tasks); next++ {
		if q.tasks[next].Status == models.QueuedTaskStatus {
			q.tasks[idx], q.tasks[next] = q.tasks[next], q.tasks[idx]
			return true
		}
	}
	return false
}

// RunNow moves a queued task in front of every other queued task, making it
// the next claim. A no-op when the task is already first in line.
func (q *TaskQueue) RunNow(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.queuedIndexLocked(id)
	if idx < 0 {
		return false
	}
	first := -1
	for i, t := range q.tasks {
		if t.Status == models.QueuedTaskStatus {
			first = i
			break
		}
	}
	if first < 0 || first == idx {
		return false
	}
	task := q.tasks[idx]
	q.tasks = append(q.tasks[:idx], q.tasks[idx+1:]...)
	q.tasks = append(q.tasks[:first], append([]models.Task{task}, q.tasks[first:]...)...)
	return true
}

// Retry enqueues a fresh task with the same kind and target as a failed one.
// The failed task keeps its id and history until explicitly cleared.
func (q *TaskQueue) Retry(id int64) (int64, bool) {
	q.mu.Lock()
	var kind models.TaskKind
	var target string
	found := false
	for _, t := range q.tasks {
		if t.ID == id && t.Status == models.FailedTaskStatus {
			kind = t.Kind
			target = t.Target
			found = true
			break
		}
	}
	q.mu.Unlock()
	if !found {
		return 0, false
	}
	return q.Add(kind, target), true
}

// ClearCompleted drops every task in a terminal status.
func (q *TaskQueue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if !t.Status.Terminal() {
			kept = append(kept, t)
		}
	}
	q.tasks = kept
}

// AutoClear drops terminal tasks that finished longer than retention ago.
// A retention of zero or less disables clearing.
func (q *TaskQueue) AutoClear(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if !t.Status.Terminal() || t.FinishedAt == nil || !t.FinishedAt.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	q.tasks = kept
}

func (q *TaskQueue) queuedIndexLocked(id int64) int {
	for i, t := range q.tasks {
		if t.ID == id && t.Status == models.QueuedTaskStatus {
			return i
		}
	}
	return -1
}

func cloneTask(t models.Task) models.Task {
	t.Output = append([]string(nil), t.Output...)
	if t.Progress != nil {
		fraction := *t.Progress
		t.Progress = &fraction
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		t.StartedAt = &ts
	}
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		t.FinishedAt = &ts
	}
	return t
}
