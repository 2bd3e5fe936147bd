package app

import (
	"fmt"
	"strings"
	"time"

	"promptd/internal/config"
	"promptd/internal/notifier"
	"promptd/internal/observability/httpd"
	"promptd/internal/prompt"
	"promptd/internal/storage"
	"promptd/internal/trigger"
	logx "promptd/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapNotifierConfig returns the pipeline config and the Telegram target, if
// one is configured. A missing notifier section enables the log sender.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, *notifier.TelegramConfig, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{Enabled: true}, nil, nil
	}
	base, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, nil, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, nil, err
	}
	out := notifier.Config{
		Enabled:       nc.Enabled,
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}
	var tg *notifier.TelegramConfig
	if t := nc.Telegram; t != nil && strings.TrimSpace(t.Token) != "" {
		tg = &notifier.TelegramConfig{Token: t.Token, ChatID: t.ChatID, ThreadID: t.ThreadID}
	}
	return out, tg, nil
}

// mapPromptConfig parses every enabled prompt's windows.
func mapPromptConfig(cfg *config.Config) (prompt.Config, error) {
	out := prompt.Config{
		Timezone:    cfg.Scheduler.Timezone,
		Refill:      cfg.Scheduler.Refill,
		RefillBelow: cfg.Scheduler.RefillBelow,
	}
	for i, p := range cfg.Prompts {
		if p.Disabled {
			continue
		}
		sched, err := trigger.ParseSchedule(p.Windows)
		if err != nil {
			return prompt.Config{}, fmt.Errorf("prompts[%d].windows: %w", i, err)
		}
		sched.WindowExpiration = p.WindowExpiration
		maxAge, err := config.ParseDurationField(fmt.Sprintf("prompts[%d].max_age", i), p.MaxAge)
		if err != nil {
			return prompt.Config{}, err
		}
		out.Prompts = append(out.Prompts, prompt.Definition{
			Name:     strings.TrimSpace(p.Name),
			Schedule: sched,
			MaxAge:   maxAge,
			Message:  p.Message,
		})
	}
	return out, nil
}

func mapHTTPConfig(cfg *config.Config) httpd.Config {
	h := cfg.HTTP
	if h == nil {
		return httpd.Config{}
	}
	return httpd.Config{
		Enabled:       h.Enabled,
		Addr:          strings.TrimSpace(h.Addr),
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		Pprof:         h.Pprof,
	}
}
