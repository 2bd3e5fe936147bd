package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"promptd/internal/config"
	"promptd/internal/notifier"
	"promptd/internal/trigger"
	logx "promptd/pkg/logx"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		st      *config.StorageConfig
		enabled bool
		driver  string
		busy    time.Duration
		wantErr bool
	}{
		{name: "absent"},
		{name: "none", st: &config.StorageConfig{Driver: "none"}},
		{name: "file", st: &config.StorageConfig{Driver: "file", Path: "x"}, enabled: true, driver: "file"},
		{name: "sqlite default busy", st: &config.StorageConfig{Driver: "SQLite", Path: "x.db"}, enabled: true, driver: "sqlite", busy: time.Second},
		{name: "sqlite busy", st: &config.StorageConfig{Driver: "sqlite3", Path: "x.db", BusyTimeout: "3s"}, enabled: true, driver: "sqlite", busy: 3 * time.Second},
		{name: "sqlite no path", st: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", st: &config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tt.st})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if enabled != tt.enabled || sc.Driver != tt.driver || sc.BusyTimeout != tt.busy {
				t.Fatalf("got %+v enabled=%v", sc, enabled)
			}
		})
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	nc, tg, err := mapNotifierConfig(&config.Config{})
	if err != nil || !nc.Enabled || tg != nil {
		t.Fatalf("absent section = %+v, %v, %v; want enabled log sender", nc, tg, err)
	}

	nc, tg, err = mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{
		Enabled:   true,
		RetryBase: "250ms",
		Telegram:  &config.TelegramConfig{Token: "t", ChatID: 42, ThreadID: 7},
	}})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if nc.RetryBase != 250*time.Millisecond {
		t.Fatalf("RetryBase = %v, want 250ms", nc.RetryBase)
	}
	if tg == nil || tg.ChatID != 42 || tg.ThreadID != 7 {
		t.Fatalf("telegram = %+v", tg)
	}

	if _, _, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{RetryBase: "soon"}}); err == nil {
		t.Fatal("expected error for invalid retry_base")
	}
}

func TestMapPromptConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{Timezone: "UTC", RefillBelow: 5},
		Prompts: []config.PromptConfig{
			{Name: " mood ", Windows: "Mo-9:00-10:00,18:30", WindowExpiration: true, MaxAge: "45m", Message: "How are you?"},
			{Name: "off", Windows: "12:00", Disabled: true},
		},
	}
	pc, err := mapPromptConfig(cfg)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if pc.Timezone != "UTC" || pc.RefillBelow != 5 || len(pc.Prompts) != 1 {
		t.Fatalf("config = %+v", pc)
	}
	d := pc.Prompts[0]
	if d.Name != "mood" || d.MaxAge != 45*time.Minute || !d.Schedule.WindowExpiration {
		t.Fatalf("definition = %+v", d)
	}
	if got, want := d.Schedule.String(), "Mo-09:00-10:00, 18:30"; got != want {
		t.Fatalf("windows = %q, want %q", got, want)
	}

	cfg.Prompts[0].Windows = "25:00"
	if _, err := mapPromptConfig(cfg); !errors.Is(err, trigger.ErrMalformedWindowSpec) {
		t.Fatalf("err = %v, want %v", err, trigger.ErrMalformedWindowSpec)
	}
}

const appConfig = `
logging:
  level: error
scheduler:
  timezone: UTC
storage:
  driver: file
  path: %STATE%
notifier:
  enabled: true
prompts:
  - name: mood
    windows: "09:00"
    message: How are you?
`

func TestAppLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "promptd.yaml")
	body := []byte(replaceState(appConfig, filepath.Join(dir, "state")))
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := a.Prompts().Snapshot()
	if len(snap) != 1 || snap[0].Name != "mood" || snap[0].Pending != trigger.HorizonDays {
		t.Fatalf("Snapshot = %+v", snap)
	}

	next := *a.cfgm.Get()
	next.Prompts = append(append([]config.PromptConfig(nil), next.Prompts...), config.PromptConfig{Name: "walk", Windows: "Sa-10:00-12:00"})
	a.applyConfig(ctx, a.cfgm.Get(), &next)
	if n := len(a.Prompts().Snapshot()); n != 2 {
		t.Fatalf("prompts after apply = %d, want 2", n)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Err() != nil {
		t.Fatalf("Err = %v, want nil", a.Err())
	}
}

func TestNewFailureLeavesStorageClosed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "promptd.yaml")
	state := filepath.Join(dir, "state")
	if err := os.WriteFile(path, []byte(replaceState(appConfig, state)), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	orig := newSender
	newSender = func(*notifier.TelegramConfig, logx.Logger) (notifier.Sender, error) {
		return nil, errors.New("no sender")
	}
	defer func() { newSender = orig }()

	if _, err := New(path); err == nil {
		t.Fatal("New error = nil, want sender failure")
	}
	if _, err := os.Stat(state + ".deliveries.jsonl"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("delivery log stat err = %v, want not exist", err)
	}
}

func replaceState(s, path string) string {
	return strings.ReplaceAll(s, "%STATE%", filepath.ToSlash(path))
}
