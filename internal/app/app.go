package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"promptd/internal/config"
	"promptd/internal/eventbus"
	"promptd/internal/notifier"
	"promptd/internal/observability/httpd"
	"promptd/internal/prompt"
	rtsup "promptd/internal/runtime/supervisor"
	"promptd/internal/storage"
	logx "promptd/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	events  *eventbus.Bus[prompt.Event]
	notif   *notifier.Service
	prompts *prompt.Service
	http    *httpd.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	ncfg, tg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifLog := log.With(logx.String("comp", "notifier"))
	sender, err := newSender(tg, notifLog)
	if err != nil {
		return nil, err
	}
	pcfg, err := mapPromptConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Storage opens last so no fallible step runs with an open store.
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	notifSvc := notifier.New(ncfg, sender, notifLog)
	events := eventbus.New[prompt.Event]()
	promptSvc := prompt.New(pcfg, store, notifSvc, log.With(logx.String("comp", "scheduler")), prompt.WithEvents(events))
	httpSvc := httpd.New(mapHTTPConfig(cfg), promptSvc, store, log.With(logx.String("comp", "http")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		events:  events,
		notif:   notifSvc,
		prompts: promptSvc,
		http:    httpSvc,
	}, nil
}

var newSender = func(tg *notifier.TelegramConfig, log logx.Logger) (notifier.Sender, error) {
	if tg == nil {
		return notifier.LogSender{Log: log}, nil
	}
	return notifier.NewTelegramSender(*tg)
}

func (a *App) Prompts() *prompt.Service { return a.prompts }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// validate rejects a reloaded config that parses but cannot be mapped.
func validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	var errs []error
	if _, _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapPromptConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validate)

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	a.prompts.Start(a.sup.Context())
	if a.http.Enabled() {
		a.http.Start(a.sup.Context())
	}

	events, unsub := a.events.Subscribe(64)
	a.sup.Go("events.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				fields := []logx.Field{logx.String("type", e.Type), logx.String("prompt", e.Prompt)}
				if !e.Trigger.IsZero() {
					fields = append(fields, logx.Time("trigger", e.Trigger))
				}
				if e.Armed > 0 {
					fields = append(fields, logx.Int("armed", e.Armed))
				}
				if e.Err != "" {
					fields = append(fields, logx.String("err", e.Err))
				}
				a.log.Debug("prompt event", fields...)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgm.Path()), logx.Int("prompts", len(a.prompts.Snapshot())))
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	if ncfg, tg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		prevEnabled := a.notif.Enabled()
		if sender, err := newSender(tg, a.log.With(logx.String("comp", "notifier"))); err != nil {
			a.log.Warn("notifier sender unavailable; keeping previous", logx.Err(err))
		} else {
			a.notif.SetSender(sender)
		}
		a.notif.Apply(ncfg)
		switch {
		case prevEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !prevEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	a.http.Reconfigure(ctx, mapHTTPConfig(newCfg))

	if pcfg, err := mapPromptConfig(newCfg); err != nil {
		a.log.Warn("invalid prompts; keeping previous", logx.Err(err))
	} else {
		a.prompts.Apply(pcfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.prompts.Stop(c); return nil })
	step("http", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Stop)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
