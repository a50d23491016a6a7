package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/Reuben-Percival/parut/pkg/models"
	"github.com/Reuben-Percival/parut/pkg/queue"
)

const (
	// dispatchInterval is how long the scheduler waits when the concurrency
	// cap is reached before rechecking.
	dispatchInterval = 500 * time.Millisecond
	// idleInterval is the backoff when the queue holds no claimable work.
	idleInterval = time.Second
)

// Worker is the perpetual scheduler loop. It claims queued tasks under the
// configured concurrency cap, runs each on its own goroutine through the
// Executor, and finalizes status on completion. The loop has start-once
// semantics and no shutdown path: it lives as long as the process.
type Worker struct {
	queue     *queue.TaskQueue
	exec      Executor
	cfg       ConfigFunc
	notifier  Notifier
	logger    Logger
	startOnce sync.Once
}

func NewWorker(q *queue.TaskQueue, exec Executor, cfg ConfigFunc, notifier Notifier, logger Logger) *Worker {
	return &Worker{
		queue:    q,
		exec:     exec,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
	}
}

// Start launches the scheduler goroutine. Subsequent calls are no-ops.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		go w.loop()
	})
}

func (w *Worker) loop() {
	for {
		cfg := w.cfg()
		w.queue.AutoClear(cfg.AutoClearAfter)

		maxParallel := cfg.MaxParallelTasks
		if maxParallel < 1 {
			maxParallel = 1
		}
		if w.queue.RunningCount() >= maxParallel {
			time.Sleep(dispatchInterval)
			continue
		}

		task, ok := w.queue.ClaimNextQueued()
		if !ok {
			time.Sleep(idleInterval)
			continue
		}
		// Execution happens outside the claim so subprocess I/O never blocks
		// the scheduler or other queue operations.
		go w.run(task)
	}
}

func (w *Worker) run(task models.Task) {
	w.logger.Infof("Starting task %d: %s %s", task.ID, task.Kind, task.Target)

	out := func(line string) {
		w.queue.AppendOutput(task.ID, line, w.cfg().OutputLinesLimit)
	}
	canceled := func() bool {
		return w.queue.IsCancelRequested(task.ID)
	}

	err := w.exec.Execute(task, out, canceled)

	// A pending cancel always wins, even when the kill raced a natural exit.
	switch {
	case w.queue.TakeCancelRequest(task.ID):
		w.queue.Finalize(task.ID, models.CanceledTaskStatus, "")
		w.logger.Infof("Task %d canceled by user", task.ID)
	case err != nil:
		w.queue.Finalize(task.ID, models.FailedTaskStatus, err.Error())
		w.logger.Errorf("Task %d failed: %v", task.ID, err)
		w.notifyFailed(task, err)
	default:
		w.queue.Finalize(task.ID, models.CompletedTaskStatus, "")
		w.logger.Infof("Task %d completed", task.ID)
		w.notifyCompleted(task)
	}
}

func (w *Worker) notifyCompleted(task models.Task) {
	if w.notifier == nil || !w.cfg().NotifyOnComplete {
		return
	}
	w.notifier.Notify("Parut task completed", fmt.Sprintf("%s %s", task.Kind, task.Target))
}

func (w *Worker) notifyFailed(task models.Task, err error) {
	if w.notifier == nil || !w.cfg().NotifyOnFailed {
		return
	}
	w.notifier.Notify("Parut task failed", fmt.Sprintf("%s %s: %v", task.Kind, task.Target, err))
}
