package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"promptd/internal/trigger"
)

// RefillParser parses scheduler.refill specs. Seconds are optional.
var RefillParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks cross-field rules the decoder cannot express. It is the
// point where malformed window specs surface to the operator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if spec := strings.TrimSpace(cfg.Scheduler.Refill); spec != "" {
		if _, err := RefillParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.refill: %w", err))
		}
	}
	if cfg.Scheduler.RefillBelow < 0 {
		errs = append(errs, errors.New("scheduler.refill_below: must be >= 0"))
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if n := cfg.Notifier; n != nil {
		if _, err := ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
			errs = append(errs, err)
		}
		if tg := n.Telegram; tg != nil && strings.TrimSpace(tg.Token) != "" && tg.ChatID == 0 {
			errs = append(errs, errors.New("notifier.telegram.chat_id: required when token is set"))
		}
	}

	if h := cfg.HTTP; h != nil && strings.TrimSpace(h.Addr) != "" {
		if _, _, err := net.SplitHostPort(h.Addr); err != nil {
			errs = append(errs, fmt.Errorf("http.addr: %w", err))
		}
	}

	seen := map[string]bool{}
	for i, p := range cfg.Prompts {
		path := fmt.Sprintf("prompts[%d]", i)
		name := strings.TrimSpace(p.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		} else if seen[name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q", path, name))
		}
		seen[name] = true

		ws, err := trigger.ParseWindows(p.Windows)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s.windows: %w", path, err))
		case len(ws) == 0:
			errs = append(errs, fmt.Errorf("%s.windows: at least one window required", path))
		}
		if _, err := ParseDurationField(path+".max_age", p.MaxAge); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
