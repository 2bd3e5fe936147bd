package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promptd/internal/app"
	"promptd/internal/trigger"
	"promptd/pkg/systemd"
)

func main() {
	var (
		cfgPath string
		check   string
		count   int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&check, "check", "", `print the canonical form and next triggers of a window list (e.g. "Mo-09:00-10:00, 18:30") and exit`)
	flag.IntVar(&count, "n", 10, "number of triggers printed by -check")
	flag.Parse()

	if check != "" {
		if err := runCheck(os.Stdout, check, time.Now(), count); err != nil {
			fmt.Fprintln(os.Stderr, "invalid windows:", err)
			os.Exit(2)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	systemd.Ready()
	go func() { _ = systemd.Watchdog(ctx, func() bool { return a.Err() == nil }) }()

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	systemd.Stopping()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// runCheck prints the canonical window list and its next n triggers, resolved
// with now as both reference and lower bound.
func runCheck(w io.Writer, windows string, now time.Time, n int) error {
	sched, err := trigger.ParseSchedule(windows)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, sched.String())
	ws := sched.Windows()
	i := 0
	for tt := range sched.TriggerTimes(now, now, 0, nil) {
		if i >= n {
			break
		}
		fmt.Fprintf(w, "%s  (%s)  %s\n", tt.Trigger.Format("Mon 2006-01-02 15:04:05"), formatOffset(tt.ReferenceTillTrigger), ws[tt.Window])
		i++
	}
	return nil
}

func formatOffset(d time.Duration) string {
	d = d.Round(time.Second)
	if d < 0 {
		return d.String()
	}
	return "+" + d.String()
}
