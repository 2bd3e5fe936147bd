package trigger

import (
	"math/rand/v2"
	"time"
)

// NextTrigger resolves the next occurrence of w relative to after.
//
// Interval windows (no weekday) pick the first day, counting from reference's
// calendar day, whose start instant is not before after. Weekday windows pick
// the next matching weekday counting from after's day, where "today" counts
// even when the time of day has already passed; such a trigger lies before
// after and is meant to fire immediately.
//
// Range windows draw a fresh uniform instant in [Start, End) on every call.
// A nil rng uses a time-seeded source private to this call.
//
// Expiration is trigger+maxAge (maxAge > 0), the window end of that day
// (expireAtWindowEnd, ranges only), the earlier of the two, or absent.
func (w Window) NextTrigger(reference, after time.Time, expireAtWindowEnd bool, maxAge time.Duration, rng Rand) TriggerTime {
	if rng == nil {
		rng = newRand()
	}
	day := w.occurrenceDay(reference, after)
	return w.resolveOn(day, reference, expireAtWindowEnd, maxAge, rng)
}

// occurrenceDay returns midnight of the day w next occurs on, in reference's location.
func (w Window) occurrenceDay(reference, after time.Time) time.Time {
	loc := reference.Location()
	after = after.In(loc)

	if w.HasWeekday {
		offset := (int(w.Weekday) - int(after.Weekday()) + 7) % 7
		return addDays(midnight(after), offset)
	}

	refDay := midnight(reference)
	day := addDays(refDay, max(0, daysBetween(refDay, after)))
	for w.Start.On(day).Before(after) {
		day = addDays(day, 1)
	}
	return day
}

func (w Window) resolveOn(day, reference time.Time, expireAtWindowEnd bool, maxAge time.Duration, rng Rand) TriggerTime {
	at := w.Start.On(day)
	if w.HasEnd {
		span := w.End.Duration() - w.Start.Duration()
		off := time.Duration(rng.Float64() * float64(span))
		// float rounding can land exactly on span; keep the range half-open.
		if off >= span {
			off = span - 1
		}
		at = at.Add(off)
	}

	var exp time.Time
	if maxAge > 0 {
		exp = at.Add(maxAge)
	}
	if expireAtWindowEnd && w.HasEnd {
		if end := w.End.On(day); exp.IsZero() || end.Before(exp) {
			exp = end
		}
	}

	return TriggerTime{
		Trigger:              at,
		ReferenceTillTrigger: at.Sub(reference),
		Expiration:           exp,
		Occurrence:           w.Start.On(day),
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func addDays(day time.Time, n int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, day.Location())
}

// daysBetween counts calendar days from a's date to b's date.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

func newRand() *rand.Rand {
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
