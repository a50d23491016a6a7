package service

import (
	"time"

	"github.com/Reuben-Percival/parut/pkg/models"
)

// Logger defines the logging interface for the worker
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Executor runs a single package-management operation to completion. Every
// output line is pushed to out as soon as it is produced; canceled is polled
// during execution and a true result obliges the executor to kill the child
// and return promptly. A nil error means the operation succeeded.
type Executor interface {
	Execute(task models.Task, out func(line string), canceled func() bool) error
}

// Notifier dispatches a desktop notification when a task reaches a terminal
// status. Implementations must never block the worker for long or propagate
// errors.
type Notifier interface {
	Notify(summary, body string)
}

// Config is the slice of settings the worker consumes. The worker re-reads it
// through its ConfigFunc on every tick, so changes apply without a restart.
type Config struct {
	MaxParallelTasks int           // Concurrency cap, floored at 1
	OutputLinesLimit int           // Per-task output buffer cap
	AutoClearAfter   time.Duration // Retention for terminal tasks; 0 disables
	NotifyOnComplete bool
	NotifyOnFailed   bool
}

// ConfigFunc returns a fresh Config snapshot.
type ConfigFunc func() Config
