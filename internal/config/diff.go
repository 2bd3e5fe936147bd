package config

import (
	"reflect"
	"sort"

	logx "promptd/pkg/logx"
)

// PromptChanges lists prompt names by kind of change between two configs.
type PromptChanges struct {
	Added   []string
	Removed []string
	Changed []string
}

func (c PromptChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// SummarizeChange returns the changed top-level sections and log fields that
// never include secrets (the telegram token is reported only as set/unset).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var changed []string
	var fields []logx.Field

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields, logx.String("logging.level", newCfg.Logging.Level))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.refill", newCfg.Scheduler.Refill),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			fields = append(fields,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Bool("notifier.telegram_set", n.Telegram != nil && n.Telegram.Token != ""),
			)
		}
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		if h := newCfg.HTTP; h != nil {
			fields = append(fields,
				logx.Bool("http.enabled", h.Enabled),
				logx.String("http.addr", h.Addr),
				logx.Bool("http.token_set", h.Token != ""),
			)
		}
	}
	pc := DiffPrompts(oldCfg.Prompts, newCfg.Prompts)
	if !pc.Empty() {
		changed = append(changed, "prompts")
		fields = append(fields,
			logx.Any("prompts.added", pc.Added),
			logx.Any("prompts.removed", pc.Removed),
			logx.Any("prompts.changed", pc.Changed),
		)
	}
	return changed, fields
}

// DiffPrompts compares prompt lists by name.
func DiffPrompts(oldList, newList []PromptConfig) PromptChanges {
	oldBy := make(map[string]PromptConfig, len(oldList))
	for _, p := range oldList {
		oldBy[p.Name] = p
	}
	var pc PromptChanges
	seen := make(map[string]bool, len(newList))
	for _, p := range newList {
		seen[p.Name] = true
		prev, ok := oldBy[p.Name]
		switch {
		case !ok:
			pc.Added = append(pc.Added, p.Name)
		case prev != p:
			pc.Changed = append(pc.Changed, p.Name)
		}
	}
	for name := range oldBy {
		if !seen[name] {
			pc.Removed = append(pc.Removed, name)
		}
	}
	sort.Strings(pc.Added)
	sort.Strings(pc.Removed)
	sort.Strings(pc.Changed)
	return pc
}
