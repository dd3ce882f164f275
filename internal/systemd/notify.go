// Package systemd reports service state to systemd through sd_notify.
package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/kvsnode/internal/logging"
)

// Notifier sends readiness, status and watchdog notifications. Outside
// systemd (no NOTIFY_SOCKET) every call is a no-op.
type Notifier struct {
	logger *slog.Logger
	notify func(unsetEnv bool, state string) (bool, error)
	// watchdogInterval returns the configured WatchdogSec, or 0.
	watchdogInterval func(unsetEnv bool) (time.Duration, error)
}

// NewNotifier creates a notifier bound to the process's NOTIFY_SOCKET.
func NewNotifier() *Notifier {
	return &Notifier{
		logger:           logging.GetLogger("systemd"),
		notify:           daemon.SdNotify,
		watchdogInterval: daemon.SdWatchdogEnabled,
	}
}

// Ready tells systemd the service finished starting.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping tells systemd the service is shutting down.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.send("STATUS=" + status)
}

// RunWatchdog pings the watchdog at half the configured interval until ctx
// is done. It returns immediately when the watchdog is not enabled.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := n.watchdogInterval(false)
	if err != nil {
		n.logger.Warn("Failed to read watchdog settings", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	n.logger.Debug("Watchdog enabled", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}
