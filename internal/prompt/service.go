package prompt

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"promptd/internal/config"
	"promptd/internal/eventbus"
	"promptd/internal/storage"
	"promptd/internal/trigger"
	logx "promptd/pkg/logx"
)

const (
	defaultRefill      = "@every 1h"
	defaultRefillBelow = 3
	storeTimeout       = 2 * time.Second
)

type armedTrigger struct {
	tt    trigger.TriggerTime
	timer Timer
}

type promptState struct {
	def       Definition
	key       string
	reference time.Time
	lastFired time.Time
	fired     []time.Time // per window, the latest fired occurrence
	watermark time.Time   // latest armed trigger; zero when nothing was armed yet
	ver       uint64      // bumped on disarm so stale timer callbacks are ignored
	nextID    uint64
	pending   map[uint64]armedTrigger
}

// Service arms and fires prompt triggers. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	cfg     Config
	loc     *time.Location
	log     logx.Logger
	store   storage.Store
	notify  Notifier
	prompts map[string]*promptState

	c       *cron.Cron
	running bool
	ctx     context.Context

	events    *eventbus.Bus[Event]
	now       func() time.Time
	afterFunc afterFunc
	rng       func() trigger.Rand
}

type Option func(*Service)

// WithClock replaces time.Now and time.AfterFunc.
func WithClock(now func() time.Time, after func(d time.Duration, f func()) Timer) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
		if after != nil {
			s.afterFunc = after
		}
	}
}

// WithEvents publishes arming and delivery outcomes on bus.
func WithEvents(bus *eventbus.Bus[Event]) Option {
	return func(s *Service) { s.events = bus }
}

// WithRand sets the jitter source factory; nil keeps fresh time-seeded sources.
func WithRand(fn func() trigger.Rand) Option {
	return func(s *Service) { s.rng = fn }
}

// New builds the service. store may be nil (no persistence).
func New(cfg Config, store storage.Store, n Notifier, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:       log,
		store:     store,
		notify:    n,
		prompts:   map[string]*promptState{},
		ctx:       context.Background(),
		now:       time.Now,
		afterFunc: realAfterFunc,
	}
	for _, o := range opts {
		o(s)
	}
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
	return s
}

func (s *Service) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func normalize(cfg Config) Config {
	cfg.Refill = strings.TrimSpace(cfg.Refill)
	if cfg.Refill == "" {
		cfg.Refill = defaultRefill
	}
	if cfg.RefillBelow <= 0 {
		cfg.RefillBelow = defaultRefillBelow
	}
	return cfg
}

// Apply reconciles the running prompts with cfg. Unchanged prompts keep their
// armed timers; changed ones are re-armed and removed ones disarmed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(cfg)
}

func (s *Service) applyLocked(cfg Config) {
	cfg = normalize(cfg)
	old := s.cfg
	s.cfg = cfg

	newLoc := s.loadLocation(cfg.Timezone)
	tzChanged := s.loc != nil && s.loc.String() != newLoc.String()
	s.loc = newLoc

	if s.running && (tzChanged || old.Refill != cfg.Refill) {
		s.restartCronLocked()
	}

	want := make(map[string]bool, len(cfg.Prompts))
	for _, def := range cfg.Prompts {
		if def.Schedule == nil || def.Name == "" {
			continue
		}
		want[def.Name] = true
		st, ok := s.prompts[def.Name]
		switch {
		case !ok:
			st = s.loadStateLocked(def)
			s.prompts[def.Name] = st
			s.log.Info("prompt added", logx.String("prompt", def.Name), logx.String("windows", def.Schedule.String()))
		case st.key != def.armKey() || tzChanged:
			s.disarmLocked(st)
			st.reference = st.reference.In(s.loc)
			if st.def.Schedule.String() != def.Schedule.String() {
				st.reference = s.now().In(s.loc)
				st.fired = nil
				st.def = def
				s.putAnchorLocked(st)
			}
			st.def, st.key = def, def.armKey()
			s.log.Info("prompt changed", logx.String("prompt", def.Name), logx.String("windows", def.Schedule.String()))
		default:
			st.def = def
			continue
		}
		if s.running {
			s.armLocked(st)
		}
	}
	for name, st := range s.prompts {
		if want[name] {
			continue
		}
		s.disarmLocked(st)
		delete(s.prompts, name)
		s.deleteAnchorLocked(name)
		s.log.Info("prompt removed", logx.String("prompt", name))
	}
}

// loadStateLocked restores the anchor of def, or creates a fresh one. A
// stored anchor for different windows keeps only its LastFired; its per-window
// occurrences no longer line up with def's windows.
func (s *Service) loadStateLocked(def Definition) *promptState {
	st := &promptState{
		def:       def,
		key:       def.armKey(),
		reference: s.now().In(s.loc),
		pending:   map[uint64]armedTrigger{},
	}
	if s.store == nil {
		return st
	}
	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	a, ok, err := s.store.GetAnchor(ctx, def.Name)
	cancel()
	switch {
	case err != nil:
		s.log.Warn("anchor load failed", logx.String("prompt", def.Name), logx.Err(err))
	case ok:
		st.lastFired = a.LastFired
		if a.Windows == def.Schedule.String() && !a.Reference.IsZero() {
			st.reference = a.Reference.In(s.loc)
			st.fired = a.Fired
			s.log.Debug("anchor restored", logx.String("prompt", def.Name), logx.Time("reference", st.reference))
			return st
		}
	}
	s.putAnchorLocked(st)
	return st
}

func (s *Service) putAnchorLocked(st *promptState) {
	if s.store == nil {
		return
	}
	s.putAnchor(anchorOf(st))
}

func anchorOf(st *promptState) storage.Anchor {
	return storage.Anchor{
		Prompt:    st.def.Name,
		Windows:   st.def.Schedule.String(),
		Reference: st.reference,
		LastFired: st.lastFired,
		Fired:     slices.Clone(st.fired),
	}
}

func (s *Service) putAnchor(a storage.Anchor) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.PutAnchor(ctx, a); err != nil {
		s.log.Warn("anchor save failed", logx.String("prompt", a.Prompt), logx.Err(err))
	}
}

func (s *Service) deleteAnchorLocked(name string) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.DeleteAnchor(ctx, name); err != nil {
		s.log.Warn("anchor delete failed", logx.String("prompt", name), logx.Err(err))
	}
}

// Start arms every prompt and starts the refill job. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx = ctx
	s.restartCronLocked()
	for _, st := range s.prompts {
		s.armLocked(st)
	}
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("prompts", len(s.prompts)), logx.String("refill", s.cfg.Refill))
}

// Stop stops the refill job and every armed timer. Anchors stay persisted so
// the next Start resumes after LastFired.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.running = false
	for _, st := range s.prompts {
		s.disarmLocked(st)
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) restartCronLocked() {
	if s.c != nil {
		s.c.Stop()
	}
	s.c = cron.New(cron.WithParser(config.RefillParser), cron.WithLocation(s.loc))
	if _, err := s.c.AddFunc(s.cfg.Refill, s.Refill); err != nil {
		s.log.Warn("invalid refill spec; using default", logx.String("spec", s.cfg.Refill), logx.Err(err))
		_, _ = s.c.AddFunc(defaultRefill, s.Refill)
	}
	s.c.Start()
}

// Refill extends every prompt whose pending timers fell below the threshold.
func (s *Service) Refill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	for _, st := range s.prompts {
		if len(st.pending) < s.cfg.RefillBelow {
			s.armLocked(st)
		}
	}
}
