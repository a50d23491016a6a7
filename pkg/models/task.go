package models

import (
	"time"

	"github.com/pkg/errors"
)

type TaskStatus string

const (
	QueuedTaskStatus    TaskStatus = "QUEUED"
	RunningTaskStatus   TaskStatus = "RUNNING"
	CompletedTaskStatus TaskStatus = "COMPLETED"
	CanceledTaskStatus  TaskStatus = "CANCELED"
	FailedTaskStatus    TaskStatus = "FAILED"
)

// Terminal reports whether the status is final. Terminal tasks keep their
// FinishedAt timestamp and are eligible for clearing.
func (s TaskStatus) Terminal() bool {
	switch s {
	case CompletedTaskStatus, CanceledTaskStatus, FailedTaskStatus:
		return true
	}
	return false
}

type TaskKind string

const (
	InstallKind       TaskKind = "install"
	RemoveKind        TaskKind = "remove"
	UpdateSystemKind  TaskKind = "update-system"
	UpdatePackageKind TaskKind = "update-package"
	CleanCacheKind    TaskKind = "clean-cache"
	RemoveOrphansKind TaskKind = "remove-orphans"
)

// SystemTarget is the target sentinel for operations that act on the whole
// system rather than a single package.
const SystemTarget = "system"

// ParseKind maps the wire form of a task kind to its enum value.
func ParseKind(s string) (TaskKind, error) {
	switch TaskKind(s) {
	case InstallKind, RemoveKind, UpdateSystemKind, UpdatePackageKind, CleanCacheKind, RemoveOrphansKind:
		return TaskKind(s), nil
	}
	return "", errors.Errorf("unknown task kind %q", s)
}

// NeedsTarget reports whether the kind operates on a single package.
func (k TaskKind) NeedsTarget() bool {
	switch k {
	case InstallKind, RemoveKind, UpdatePackageKind:
		return true
	}
	return false
}

// Task represents one queued package-management operation
type Task struct {
	ID          int64      `json:"id"`                    // Unique, monotonically increasing, assigned at enqueue
	Kind        TaskKind   `json:"kind"`                  // Determines the paru invocation
	Target      string     `json:"target"`                // Package name, or SystemTarget
	Status      TaskStatus `json:"status"`                // "QUEUED", "RUNNING", "COMPLETED", "CANCELED", "FAILED"
	Output      []string   `json:"output"`                // Capped subprocess output, oldest dropped first
	OutputTotal int        `json:"output_total"`          // Lines ever appended, unaffected by the cap
	Progress    *float64   `json:"progress,omitempty"`    // 0.0 to 1.0; nil = indeterminate
	Phase       string     `json:"phase,omitempty"`       // Coarse stage label derived from output
	ErrorMsg    string     `json:"error,omitempty"`       // Failure reason (optional)
	StartedAt   *time.Time `json:"started_at,omitempty"`  // Nullable start time, reset on every run attempt
	FinishedAt  *time.Time `json:"finished_at,omitempty"` // Nullable end time, set iff status is terminal
}
