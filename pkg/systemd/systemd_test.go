package systemd

import (
	"context"
	"testing"
	"time"
)

func TestWatchdogDisabledReturns(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("NOTIFY_SOCKET", "")
	if got := WatchdogInterval(); got != 0 {
		t.Fatalf("WatchdogInterval = %v, want 0", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Watchdog(ctx, nil); err != nil {
		t.Fatalf("Watchdog = %v, want nil", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Watchdog blocked although the watchdog is disabled")
	}
}

func TestNotifyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	Ready()
	Status("ok")
	Stopping()
}
