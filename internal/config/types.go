package config

// Config is the on-disk configuration (JSON or YAML).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	HTTP      *HTTPConfig     `json:"http,omitempty"`
	Prompts   []PromptConfig  `json:"prompts"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls how prompt triggers are armed.
//
// Defaults (when omitted):
//   - timezone: local
//   - refill: "@every 1h" (cron spec or descriptor)
//   - refill_below: 3 pending triggers
type SchedulerConfig struct {
	Timezone    string `json:"timezone,omitempty"`
	Refill      string `json:"refill,omitempty"`
	RefillBelow int    `json:"refill_below,omitempty"`
}

// StorageConfig controls anchor and delivery-log persistence.
//
// Example:
//
//	storage: { driver: sqlite, path: ./promptd.db, busy_timeout: 2s }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// NotifierConfig controls the delivery pipeline.
//
// All durations are Go duration strings. When the section is omitted the
// notifier is enabled with the log sender only.
type NotifierConfig struct {
	Enabled       bool            `json:"enabled"`
	Workers       int             `json:"workers,omitempty"`
	QueueSize     int             `json:"queue_size,omitempty"`
	RatePerSec    int             `json:"rate_per_sec,omitempty"`
	RetryMax      int             `json:"retry_max,omitempty"`
	RetryBase     string          `json:"retry_base,omitempty"`
	RetryMaxDelay string          `json:"retry_max_delay,omitempty"`
	Telegram      *TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// ThreadID targets a forum topic (0 for none).
	ThreadID int `json:"thread_id,omitempty"`
}

// HTTPConfig controls the operator endpoints (/healthz, /status, previews,
// delivery log and optional pprof). Disabled when omitted.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

// PromptConfig declares one recurring prompt.
//
//   - name: mood
//     windows: "Mo-09:00-10:00, 18:30"
//     window_expiration: true
//     max_age: 45m
//     message: How are you feeling?
type PromptConfig struct {
	Name             string `json:"name"`
	Windows          string `json:"windows"`
	WindowExpiration bool   `json:"window_expiration,omitempty"`
	MaxAge           string `json:"max_age,omitempty"`
	Message          string `json:"message,omitempty"`
	Disabled         bool   `json:"disabled,omitempty"`
}
