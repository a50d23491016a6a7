package paru

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Reuben-Percival/parut/internal/config"
	"github.com/Reuben-Percival/parut/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (l *testLogger) Infof(format string, args ...interface{})  {}
func (l *testLogger) Errorf(format string, args ...interface{}) {}

func newTestRunner(settings config.Settings) *Runner {
	if settings.TerminalPreference == "" {
		settings.TerminalPreference = "auto"
	}
	return NewRunner(func() config.Settings { return settings }, &testLogger{})
}

// lineSink collects output callback lines for assertions.
type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func never() bool { return false }

func TestTaskArgs(t *testing.T) {
	r := newTestRunner(config.Settings{})
	tests := []struct {
		name     string
		task     models.Task
		expected []string
	}{
		{"install", models.Task{Kind: models.InstallKind, Target: "foo"}, []string{"-S", "--noconfirm", "foo"}},
		{"update package", models.Task{Kind: models.UpdatePackageKind, Target: "foo"}, []string{"-S", "--noconfirm", "foo"}},
		{"remove", models.Task{Kind: models.RemoveKind, Target: "foo"}, []string{"-Rns", "--noconfirm", "foo"}},
		{"update system", models.Task{Kind: models.UpdateSystemKind, Target: models.SystemTarget}, []string{"-Syu", "--noconfirm"}},
		{"clean cache", models.Task{Kind: models.CleanCacheKind, Target: models.SystemTarget}, []string{"-Sc", "--noconfirm"}},
		{"remove orphans", models.Task{Kind: models.RemoveOrphansKind, Target: models.SystemTarget}, []string{"-c", "--noconfirm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := r.taskArgs(tt.task)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, args)
		})
	}

	_, err := r.taskArgs(models.Task{Kind: "frobnicate"})
	assert.Error(t, err)
}

func TestUpdateSystemArgs_ScopeAndIgnoreList(t *testing.T) {
	r := newTestRunner(config.Settings{DefaultUpdateScope: "repo-only"})
	assert.Equal(t, []string{"-Syu", "--noconfirm", "--repo"}, r.updateSystemArgs())

	r = newTestRunner(config.Settings{DefaultUpdateScope: "aur-only"})
	assert.Equal(t, []string{"-Syu", "--noconfirm", "--aur"}, r.updateSystemArgs())

	r = newTestRunner(config.Settings{
		DefaultUpdateScope: "all",
		IgnoredUpdates:     []string{" linux ", "", "glibc"},
	})
	assert.Equal(t, []string{"-Syu", "--noconfirm", "--ignore", "linux,glibc"}, r.updateSystemArgs())
}

func TestExecute_NoTerminalFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	r := newTestRunner(config.Settings{})
	sink := &lineSink{}

	err := r.Execute(models.Task{Kind: models.InstallKind, Target: "foo"}, sink.add, never)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No terminal emulator found")
}

func TestExecute_StubTerminalSuccess(t *testing.T) {
	writeStubTerminal(t, "xterm", "#!/bin/sh\nexit 0\n")
	r := newTestRunner(config.Settings{})
	sink := &lineSink{}

	err := r.Execute(models.Task{Kind: models.InstallKind, Target: "foo"}, sink.add, never)
	require.NoError(t, err)

	lines := sink.all()
	require.Len(t, lines, 2)
	assert.Equal(t, "Running in terminal: xterm paru -S --noconfirm foo", lines[0])
	assert.Equal(t, "Terminal opened - waiting for completion...", lines[1])
}

func TestExecute_StubTerminalFailure(t *testing.T) {
	writeStubTerminal(t, "xterm", "#!/bin/sh\nexit 1\n")
	r := newTestRunner(config.Settings{})
	sink := &lineSink{}

	err := r.Execute(models.Task{Kind: models.RemoveKind, Target: "foo"}, sink.add, never)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation failed - check terminal output")
}

func TestExecute_CancellationKillsChild(t *testing.T) {
	// Absolute path: the test replaces PATH with the stub dir, so a bare
	// "sleep" would not resolve and the stub would exit immediately.
	writeStubTerminal(t, "xterm", "#!/bin/sh\nexec /bin/sleep 30\n")
	r := newTestRunner(config.Settings{})
	sink := &lineSink{}

	err := r.Execute(models.Task{Kind: models.UpdateSystemKind, Target: models.SystemTarget}, sink.add, func() bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task canceled by user")
	assert.Contains(t, sink.all(), "Task canceled by user.")
}

func TestExecute_PrefersConfiguredTerminal(t *testing.T) {
	dir := writeStubTerminal(t, "xterm", "#!/bin/sh\nexit 0\n")
	stub := filepath.Join(dir, "alacritty")
	require.NoError(t, os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	r := newTestRunner(config.Settings{TerminalPreference: "alacritty"})
	sink := &lineSink{}

	err := r.Execute(models.Task{Kind: models.InstallKind, Target: "foo"}, sink.add, never)
	require.NoError(t, err)
	assert.Contains(t, sink.all()[0], "Running in terminal: alacritty")
}

// writeStubTerminal drops an executable script named like a terminal emulator
// into a temp dir and points PATH at it.
func writeStubTerminal(t *testing.T, name, script string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
	t.Setenv("PATH", dir)
	return dir
}
