// Package config loads parut settings through viper. Settings are never
// cached by consumers: Current builds a fresh snapshot from viper on every
// call, so file or environment changes take effect on the scheduler's next
// tick without a restart.
package config

import (
	"strings"
	"time"

	"github.com/Reuben-Percival/parut/pkg/service"
	"github.com/spf13/viper"
)

// Settings is a point-in-time snapshot of the configuration the task
// subsystem consumes.
type Settings struct {
	MaxParallelTasks     int      // Concurrency cap, floored at 1
	TaskOutputLimit      int      // Output buffer cap per task, floored at 50
	AutoClearMinutes     int      // Retention for finished tasks; 0 disables
	TerminalPreference   string   // "auto" or a known terminal name
	DefaultUpdateScope   string   // all, repo-only, aur-only
	IgnoredUpdates       []string // Packages excluded from system updates
	NotifyOnTaskComplete bool
	NotifyOnTaskFailed   bool
	LogLevel             string
	HTTPPort             string
}

// Init wires defaults, the optional config file and the PARUT_* environment
// overrides. path may be empty, in which case parut.yaml is searched in the
// working directory and ~/.config/parut; a missing file is not an error.
func Init(path string) error {
	setDefaults()
	viper.SetEnvPrefix("PARUT")
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("parut")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/parut")
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file is fine; defaults and env apply.
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
			return nil
		}
		return err
	}
	viper.WatchConfig()
	return nil
}

func setDefaults() {
	viper.SetDefault("max_parallel_tasks", 1)
	viper.SetDefault("task_output_lines_limit", 300)
	viper.SetDefault("auto_clear_completed_tasks_minutes", 0)
	viper.SetDefault("terminal_preference", "auto")
	viper.SetDefault("default_update_scope", "all")
	viper.SetDefault("ignored_updates", []string{})
	viper.SetDefault("notify_on_task_complete", false)
	viper.SetDefault("notify_on_task_failed", true)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("http_port", "8745")
}

// Current reads the live settings. Floors are applied here so the rest of the
// subsystem can trust the values.
func Current() Settings {
	s := Settings{
		MaxParallelTasks:     viper.GetInt("max_parallel_tasks"),
		TaskOutputLimit:      viper.GetInt("task_output_lines_limit"),
		AutoClearMinutes:     viper.GetInt("auto_clear_completed_tasks_minutes"),
		TerminalPreference:   viper.GetString("terminal_preference"),
		DefaultUpdateScope:   viper.GetString("default_update_scope"),
		IgnoredUpdates:       viper.GetStringSlice("ignored_updates"),
		NotifyOnTaskComplete: viper.GetBool("notify_on_task_complete"),
		NotifyOnTaskFailed:   viper.GetBool("notify_on_task_failed"),
		LogLevel:             viper.GetString("log_level"),
		HTTPPort:             viper.GetString("http_port"),
	}
	if s.MaxParallelTasks < 1 {
		s.MaxParallelTasks = 1
	}
	if s.TaskOutputLimit < 50 {
		s.TaskOutputLimit = 50
	}
	if s.AutoClearMinutes < 0 {
		s.AutoClearMinutes = 0
	}
	if s.TerminalPreference == "" {
		s.TerminalPreference = "auto"
	}
	return s
}

// Service converts the snapshot into the worker's config shape.
func (s Settings) Service() service.Config {
	return service.Config{
		MaxParallelTasks: s.MaxParallelTasks,
		OutputLinesLimit: s.TaskOutputLimit,
		AutoClearAfter:   time.Duration(s.AutoClearMinutes) * time.Minute,
		NotifyOnComplete: s.NotifyOnTaskComplete,
		NotifyOnFailed:   s.NotifyOnTaskFailed,
	}
}

// IgnoredPackages returns the ignore list with entries trimmed and blanks
// dropped.
func (s Settings) IgnoredPackages() []string {
	var ignored []string
	for _, pkg := range s.IgnoredUpdates {
		if trimmed := strings.TrimSpace(pkg); trimmed != "" {
			ignored = append(ignored, trimmed)
		}
	}
	return ignored
}
