package queue_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Reuben-Percival/parut/pkg/models"
	"github.com/Reuben-Percival/parut/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_IDsStrictlyIncreasing(t *testing.T) {
	q := queue.NewTaskQueue()
	var ids []int64
	for i := 0; i < 10; i++ {
		ids = append(ids, q.Add(models.InstallKind, fmt.Sprintf("pkg%d", i)))
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestClaimNextQueued_FIFO(t *testing.T) {
	q := queue.NewTaskQueue()
	first := q.Add(models.InstallKind, "a")
	second := q.Add(models.RemoveKind, "b")
	third := q.Add(models.UpdatePackageKind, "c")

	for _, expected := range []int64{first, second, third} {
		task, ok := q.ClaimNextQueued()
		require.True(t, ok)
		assert.Equal(t, expected, task.ID)
		assert.Equal(t, models.RunningTaskStatus, task.Status)
		assert.Equal(t, "Preparing", task.Phase)
		require.NotNil(t, task.StartedAt)
		assert.Nil(t, task.FinishedAt)
	}

	_, ok := q.ClaimNextQueued()
	assert.False(t, ok)
}

func TestClaimNextQueued_AtMostOnceUnderConcurrency(t *testing.T) {
	q := queue.NewTaskQueue()
	const total = 50
	for i := 0; i < total; i++ {
		q.Add(models.InstallKind, fmt.Sprintf("pkg%d", i))
	}

	claimed := make(chan int64, total)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok := q.ClaimNextQueued()
				if !ok {
					return
				}
				claimed <- task.ID
			}
		}()
	}
	wg.Wait()
	close(claimed)

	seen := make(map[int64]bool)
	for id := range claimed {
		assert.False(t, seen[id], "task %d claimed twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, total)
}

func TestAppendOutput_CapDropsOldest(t *testing.T) {
	q := queue.NewTaskQueue()
	id := q.Add(models.InstallKind, "foo")
	for i := 0; i < 120; i++ {
		q.AppendOutput(id, fmt.Sprintf("line %d", i), 100)
	}

	task, ok := q.Get(id)
	require.True(t, ok)
	assert.Len(t, task.Output, 100)
	assert.Equal(t, "line 20", task.Output[0])
	assert.Equal(t, "line 119", task.Output[99])
	assert.Equal(t, 120, task.OutputTotal, "total keeps counting past the cap")
}

func TestRequestCancel_OutputCapHolds(t *testing.T) {
	// The synthetic cancellation line must not push a full buffer past its
	// cap, same as any subprocess line.
	const limit = 50
	q := queue.NewTaskQueue()
	id := q.Add(models.InstallKind, "foo")
	_, ok := q.ClaimNextQueued()
	require.True(t, ok)
	for i := 0; i < limit; i++ {
		q.AppendOutput(id, fmt.Sprintf("line %d", i), limit)
	}

	require.True(t, q.RequestCancel(id, limit))

	task, _ := q.Get(id)
	assert.Len(t, task.Output, limit)
	assert.Equal(t, "Cancellation requested...", task.Output[limit-1])
	assert.Equal(t, "line 1", task.Output[0], "oldest line dropped to make room")
}

func TestAppendOutput_ProgressAndPhaseSticky(t *testing.T) {
	q := queue.NewTaskQueue()
	id := q.Add(models.InstallKind, "foo")

	q.AppendOutput(id, "downloading... 45%", 300)
	task, _ := q.Get(id)
	require.NotNil(t, task.Progress)
	assert.InDelta(t, 0.45, *task.Progress, 1e-9)
	assert.Equal(t, "Downloading", task.Phase)

	// A line with neither signal leaves both in place.
	q.AppendOutput(id, "warning: nothing to see here", 300)
	task, _ = q.Get(id)
	require.NotNil(t, task.Progress)
	assert.InDelta(t, 0.45, *task.Progress, 1e-9)
	assert.Equal(t, "Downloading", task.Phase)

	q.AppendOutput(id, "(2/5) checking keys", 300)
	task, _ = q.Get(id)
	assert.InDelta(t, 0.4, *task.Progress, 1e-9)
	assert.Equal(t, "Checking keys", task.Phase)
}

func TestFinalize_SetsFinishedAtOnlyForTerminal(t *testing.T) {
	q := queue.NewTaskQueue()
	id := q.Add(models.InstallKind, "foo")
	_, ok := q.ClaimNextQueued()
	require.True(t, ok)

	// Non-terminal statuses are rejected.
	q.Finalize(id, models.RunningTaskStatus, "")
	task, _ := q.Get(id)
	assert.Equal(t, models.RunningTaskStatus, task.Status)
	assert.Nil(t, task.FinishedAt)

	q.Finalize(id, models.FailedTaskStatus, "boom")
	task, _ = q.Get(id)
	assert.Equal(t, models.FailedTaskStatus, task.Status)
	assert.Equal(t, "boom", task.ErrorMsg)
	require.NotNil(t, task.FinishedAt)
}

func TestCancelQueued(t *testing.T) {
	q := queue.NewTaskQueue()
	id := q.Add(models.InstallKind, "foo")
	assert.True(t, q.CancelQueued(id))

	_, ok := q.Get(id)
	assert.False(t, ok, "canceled queued task should be removed")

	// Running tasks cannot be cancel-queued.
	running := q.Add(models.InstallKind, "bar")
	_, claimed := q.ClaimNextQueued()
	require.True(t, claimed)
	assert.False(t, q.CancelQueued(running))
}

func TestRequestCancel_OnlyRunning(t *testing.T) {
	q := queue.NewTaskQueue()
	id := q.Add(models.InstallKind, "foo")

	assert.False(t, q.RequestCancel(id, 300), "queued task is not cancelable")

	_, ok := q.ClaimNextQueued()
	require.True(t, ok)
	assert.True(t, q.RequestCancel(id, 300))
	assert.True(t, q.IsCancelRequested(id))

	task, _ := q.Get(id)
	assert.Contains(t, task.Output, "Cancellation requested...")

	// The request is consumed exactly once.
	assert.True(t, q.TakeCancelRequest(id))
	assert.False(t, q.TakeCancelRequest(id))
	assert.False(t, q.IsCancelRequested(id))
}

func TestReorder(t *testing.T) {
	q := queue.NewTaskQueue()
	a := q.Add(models.InstallKind, "a")
	b := q.Add(models.InstallKind, "b")
	c := q.Add(models.InstallKind, "c")

	require.True(t, q.MoveUp(b))
	assertOrder(t, q, b, a, c)

	require.True(t, q.MoveDown(b))
	assertOrder(t, q, a, b, c)

	require.True(t, q.RunNow(c))
	assertOrder(t, q, c, a, b)

	// Head of the queue has nowhere to go.
	assert.False(t, q.MoveUp(c))
	assert.False(t, q.RunNow(c))
	assert.False(t, q.MoveDown(b))

	// Running tasks are not reorderable.
	_, ok := q.ClaimNextQueued()
	require.True(t, ok)
	assert.False(t, q.MoveUp(c))
	assert.False(t, q.MoveDown(c))
	assert.False(t, q.RunNow(c))
}

func TestRunNow_SkipsRunningHead(t *testing.T) {
	q := queue.NewTaskQueue()
	q.Add(models.InstallKind, "running")
	a := q.Add(models.InstallKind, "a")
	b := q.Add(models.InstallKind, "b")
	_, ok := q.ClaimNextQueued()
	require.True(t, ok)

	require.True(t, q.RunNow(b))

	task, claimed := q.ClaimNextQueued()
	require.True(t, claimed)
	assert.Equal(t, b, task.ID)

	task, claimed = q.ClaimNextQueued()
	require.True(t, claimed)
	assert.Equal(t, a, task.ID)
}

func TestRetry_CreatesNewTask(t *testing.T) {
	q := queue.NewTaskQueue()
	id := q.Add(models.InstallKind, "foo")
	_, ok := q.ClaimNextQueued()
	require.True(t, ok)
	q.Finalize(id, models.FailedTaskStatus, "boom")

	newID, retried := q.Retry(id)
	require.True(t, retried)
	assert.NotEqual(t, id, newID)

	// The failed task stays around with its history.
	failed, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.FailedTaskStatus, failed.Status)

	fresh, ok := q.Get(newID)
	require.True(t, ok)
	assert.Equal(t, models.QueuedTaskStatus, fresh.Status)
	assert.Equal(t, models.InstallKind, fresh.Kind)
	assert.Equal(t, "foo", fresh.Target)

	// Only failed tasks can be retried.
	_, retried = q.Retry(newID)
	assert.False(t, retried)
}

func TestClearCompleted(t *testing.T) {
	q := queue.NewTaskQueue()
	done := q.Add(models.InstallKind, "done")
	queued := q.Add(models.InstallKind, "queued")
	_, ok := q.ClaimNextQueued()
	require.True(t, ok)
	q.Finalize(done, models.CompletedTaskStatus, "")

	q.ClearCompleted()

	_, ok = q.Get(done)
	assert.False(t, ok)
	_, ok = q.Get(queued)
	assert.True(t, ok)
}

func TestAutoClear(t *testing.T) {
	q := queue.NewTaskQueue()
	id := q.Add(models.InstallKind, "foo")
	_, ok := q.ClaimNextQueued()
	require.True(t, ok)
	q.Finalize(id, models.CompletedTaskStatus, "")

	// Zero retention disables clearing entirely.
	q.AutoClear(0)
	_, ok = q.Get(id)
	assert.True(t, ok)

	// A generous retention keeps a just-finished task.
	q.AutoClear(time.Hour)
	_, ok = q.Get(id)
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	q.AutoClear(time.Millisecond)
	_, ok = q.Get(id)
	assert.False(t, ok)
}

func TestSnapshot_IsACopy(t *testing.T) {
	q := queue.NewTaskQueue()
	id := q.Add(models.InstallKind, "foo")
	q.AppendOutput(id, "line", 300)

	snapshot := q.Snapshot()
	require.Len(t, snapshot, 1)
	snapshot[0].Output[0] = "mutated"
	snapshot[0].Status = models.FailedTaskStatus

	task, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, "line", task.Output[0])
	assert.Equal(t, models.QueuedTaskStatus, task.Status)
}

func assertOrder(t *testing.T, q *queue.TaskQueue, ids ...int64) {
	t.Helper()
	snapshot := q.Snapshot()
	require.Len(t, snapshot, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, snapshot[i].ID, "position %d", i)
	}
}
