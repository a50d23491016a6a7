package service

import (
	"sync"
	"time"

	"github.com/Reuben-Percival/parut/pkg/models"
	"github.com/pkg/errors"
)

// MockExecutor implements Executor without spawning processes. It emits a
// scripted set of lines, optionally holds the task open for Delay while
// polling for cancellation, then returns Err.
type MockExecutor struct {
	Lines []string      // Emitted to the output callback before waiting
	Delay time.Duration // How long the fake operation runs
	Err   error         // Result returned after Delay (nil = success)

	mu      sync.Mutex
	started []int64
}

func (m *MockExecutor) Execute(task models.Task, out func(line string), canceled func() bool) error {
	m.mu.Lock()
	m.started = append(m.started, task.ID)
	m.mu.Unlock()

	for _, line := range m.Lines {
		out(line)
	}

	deadline := time.Now().Add(m.Delay)
	for {
		if canceled() {
			out("Task canceled by user.")
			return errors.New("task canceled by user")
		}
		if !time.Now().Before(deadline) {
			return m.Err
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Started returns the task ids handed to Execute, in claim order.
func (m *MockExecutor) Started() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.started...)
}
