// Package systemd reports service state to the systemd manager. Every call is
// a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func Ready() { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }

func Stopping() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(text string) { _, _ = daemon.SdNotify(false, "STATUS="+text) }

// WatchdogInterval is half the configured WatchdogSec, or 0 when the watchdog
// is disabled.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings the systemd watchdog until ctx is done. healthy is consulted
// before every ping; an unhealthy process stops pinging and lets systemd
// restart it.
func Watchdog(ctx context.Context, healthy func() bool) error {
	every := WatchdogInterval()
	if every <= 0 {
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
