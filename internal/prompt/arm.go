package prompt

import (
	"context"
	"errors"
	"time"

	"promptd/internal/notifier"
	"promptd/internal/storage"
	"promptd/internal/trigger"
	logx "promptd/pkg/logx"
)

func (s *Service) newRand() trigger.Rand {
	if s.rng == nil {
		return nil
	}
	return s.rng()
}

// armLocked arms the next horizon of st's triggers, starting at the later of
// now and the watermark. Triggers at or before the watermark are already
// armed. Triggers at or before lastFired, or belonging to a window occurrence
// that already fired, were handled before a restart.
func (s *Service) armLocked(st *promptState) {
	now := s.now().In(s.loc)
	after := now
	if st.watermark.After(after) {
		after = st.watermark
	}

	armed := 0
	for tt := range st.def.Schedule.TriggerTimes(st.reference, after, st.def.MaxAge, s.newRand()) {
		if !tt.Trigger.After(st.watermark) || !tt.Trigger.After(st.lastFired) || st.occurrenceFired(tt) {
			continue
		}
		s.armOneLocked(st, tt, now)
		armed++
	}
	if armed > 0 {
		s.events.Publish(Event{Type: EventArmed, At: now, Prompt: st.def.Name, Armed: armed})
		s.log.Debug("prompt armed",
			logx.String("prompt", st.def.Name),
			logx.Int("armed", armed),
			logx.Int("pending", len(st.pending)),
			logx.Time("watermark", st.watermark),
		)
	}
}

func (s *Service) armOneLocked(st *promptState, tt trigger.TriggerTime, now time.Time) {
	st.nextID++
	id, ver, name := st.nextID, st.ver, st.def.Name
	delay := max(tt.Trigger.Sub(now), 0)
	timer := s.afterFunc(delay, func() { s.fire(name, ver, id) })
	st.pending[id] = armedTrigger{tt: tt, timer: timer}
	if tt.Trigger.After(st.watermark) {
		st.watermark = tt.Trigger
	}
}

// occurrenceFired reports whether tt's window already fired on tt's day or
// later. A weekday range window re-resolved on the same day draws a new
// instant, so lastFired alone does not catch it.
func (st *promptState) occurrenceFired(tt trigger.TriggerTime) bool {
	if tt.Window >= len(st.fired) {
		return false
	}
	f := st.fired[tt.Window]
	return !f.IsZero() && !tt.Occurrence.After(f)
}

func (st *promptState) markFired(tt trigger.TriggerTime) {
	if n := st.def.Schedule.Len(); len(st.fired) < n {
		st.fired = append(st.fired, make([]time.Time, n-len(st.fired))...)
	}
	if tt.Window < len(st.fired) && tt.Occurrence.After(st.fired[tt.Window]) {
		st.fired[tt.Window] = tt.Occurrence
	}
}

// disarmLocked stops every timer of st and forgets the watermark.
func (s *Service) disarmLocked(st *promptState) {
	for id, a := range st.pending {
		a.timer.Stop()
		delete(st.pending, id)
	}
	st.ver++
	st.watermark = time.Time{}
}

// fire runs from a timer callback. Stale callbacks (disarmed or replaced
// prompts) are ignored.
func (s *Service) fire(name string, ver, id uint64) {
	s.mu.Lock()
	st, ok := s.prompts[name]
	if !ok || st.ver != ver {
		s.mu.Unlock()
		return
	}
	a, ok := st.pending[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(st.pending, id)
	if a.tt.Trigger.After(st.lastFired) {
		st.lastFired = a.tt.Trigger
	}
	st.markFired(a.tt)
	anchor := anchorOf(st)
	msg := st.def.Message
	ctx := s.ctx
	if s.running && len(st.pending) < s.cfg.RefillBelow {
		s.armLocked(st)
	}
	s.mu.Unlock()

	s.putAnchor(anchor)

	tt := a.tt
	now := s.now()
	if tt.Expired(now) {
		s.log.Info("prompt expired before delivery", logx.String("prompt", name), logx.Time("trigger", tt.Trigger), logx.Time("expiration", tt.Expiration))
		s.record(name, tt, storage.StatusExpired, nil)
		return
	}
	if s.notify == nil {
		s.record(name, tt, storage.StatusFailed, notifier.ErrDisabled)
		return
	}
	err := s.notify.Notify(ctx, notifier.Message{
		Prompt:     name,
		Text:       msg,
		Trigger:    tt.Trigger,
		Expiration: tt.Expiration,
		Done: func(err error) {
			if errors.Is(err, notifier.ErrExpired) {
				s.record(name, tt, storage.StatusExpired, nil)
				return
			}
			if err != nil {
				s.record(name, tt, storage.StatusFailed, err)
				return
			}
			s.record(name, tt, storage.StatusDelivered, nil)
		},
	})
	if err != nil {
		s.log.Warn("prompt enqueue failed", logx.String("prompt", name), logx.Err(err))
		s.record(name, tt, storage.StatusFailed, err)
	}
}

var eventTypes = map[string]string{
	storage.StatusDelivered: EventDelivered,
	storage.StatusExpired:   EventExpired,
	storage.StatusFailed:    EventFailed,
}

func (s *Service) record(name string, tt trigger.TriggerTime, status string, cause error) {
	d := storage.Delivery{
		At:         s.now(),
		Prompt:     name,
		Trigger:    tt.Trigger,
		Expiration: tt.Expiration,
		Status:     status,
	}
	if cause != nil {
		d.Error = cause.Error()
	}
	s.events.Publish(Event{Type: eventTypes[status], At: d.At, Prompt: name, Trigger: tt.Trigger, Err: d.Error})
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.AppendDelivery(ctx, d); err != nil {
		s.log.Warn("delivery log append failed", logx.String("prompt", name), logx.Err(err))
	}
}
