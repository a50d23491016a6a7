// Package notify dispatches desktop notifications through notify-send.
package notify

import (
	"os/exec"

	"github.com/Reuben-Percival/parut/pkg/service"
)

// Dispatcher implements service.Notifier. Dispatch failures are logged and
// swallowed; a missing notify-send binary silently disables notifications.
type Dispatcher struct {
	logger service.Logger
}

func NewDispatcher(logger service.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) Notify(summary, body string) {
	if _, err := exec.LookPath("notify-send"); err != nil {
		d.logger.Infof("notify-send not found, skipping notification %q", summary)
		return
	}
	if err := exec.Command("notify-send", summary, body).Run(); err != nil {
		d.logger.Errorf("Failed to send notification %q: %v", summary, err)
	}
}
