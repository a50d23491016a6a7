// Package paru is the process execution engine: it maps task kinds to paru
// invocations and runs them inside a terminal emulator, streaming synthetic
// status lines and polling for cancellation. Real paru output stays in the
// terminal window; exit status alone decides success.
package paru

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Reuben-Percival/parut/internal/config"
	"github.com/Reuben-Percival/parut/internal/term"
	"github.com/Reuben-Percival/parut/pkg/models"
	"github.com/Reuben-Percival/parut/pkg/service"
	"github.com/pkg/errors"
)

const command = "paru"

// pollInterval bounds how long a cancellation request can go unnoticed.
const pollInterval = 200 * time.Millisecond

// Runner implements service.Executor by shelling out to paru through a
// terminal emulator. Settings are read fresh on every execution attempt.
type Runner struct {
	cfg    func() config.Settings
	logger service.Logger
}

func NewRunner(cfg func() config.Settings, logger service.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runner) Execute(task models.Task, out func(line string), canceled func() bool) error {
	args, err := r.taskArgs(task)
	if err != nil {
		return err
	}
	r.logger.Infof("Starting %s for %q: %s %s", task.Kind, task.Target, command, strings.Join(args, " "))
	return r.runInTerminal(args, out, canceled)
}

func (r *Runner) taskArgs(task models.Task) ([]string, error) {
	switch task.Kind {
	case models.InstallKind, models.UpdatePackageKind:
		return []string{"-S", "--noconfirm", task.Target}, nil
	case models.RemoveKind:
		return []string{"-Rns", "--noconfirm", task.Target}, nil
	case models.UpdateSystemKind:
		return r.updateSystemArgs(), nil
	case models.CleanCacheKind:
		// -Sc drops uninstalled packages from the cache
		return []string{"-Sc", "--noconfirm"}, nil
	case models.RemoveOrphansKind:
		// -c removes orphans recursively
		return []string{"-c", "--noconfirm"}, nil
	default:
		return nil, errors.Errorf("unknown task kind %q", task.Kind)
	}
}

func (r *Runner) updateSystemArgs() []string {
	cfg := r.cfg()
	args := []string{"-Syu", "--noconfirm"}
	switch cfg.DefaultUpdateScope {
	case "repo-only":
		args = append(args, "--repo")
	case "aur-only":
		args = append(args, "--aur")
	}
	if ignored := cfg.IgnoredPackages(); len(ignored) > 0 {
		args = append(args, "--ignore", strings.Join(ignored, ","))
	}
	return args
}

// runInTerminal walks the terminal candidates, spawns paru inside the first
// one that launches, and polls the child until it exits or cancellation is
// requested. A candidate that is present but fails to spawn is logged and the
// next one tried; its error surfaces only when every candidate fails.
func (r *Runner) runInTerminal(args []string, out func(line string), canceled func() bool) error {
	found := false
	var lastErr error

	for _, emulator := range term.Candidates(r.cfg().TerminalPreference) {
		if !term.Exists(emulator) {
			continue
		}
		found = true

		out(fmt.Sprintf("Running in terminal: %s %s %s", emulator, command, strings.Join(args, " ")))
		cmd := exec.Command(emulator, term.CommandArgs(emulator, command, args)...)
		if err := cmd.Start(); err != nil {
			lastErr = errors.Wrapf(err, "failed to spawn %s", emulator)
			r.logger.Errorf("Failed to spawn %s: %v", emulator, err)
			continue
		}
		out("Terminal opened - waiting for completion...")
		return r.wait(cmd, out, canceled)
	}

	if !found {
		return errors.New("No terminal emulator found")
	}
	return lastErr
}

func (r *Runner) wait(cmd *exec.Cmd, out func(line string), canceled func() bool) error {
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	for {
		select {
		case err := <-waitCh:
			if err != nil {
				// Diagnostics went to the terminal window, not a captured
				// stream, so only a generic failure is available here.
				return errors.New("operation failed - check terminal output")
			}
			return nil
		case <-time.After(pollInterval):
			if !canceled() {
				continue
			}
			if err := cmd.Process.Kill(); err != nil {
				r.logger.Errorf("Failed to kill %s: %v", cmd.Path, err)
			}
			<-waitCh
			out("Task canceled by user.")
			return errors.New("task canceled by user")
		}
	}
}
