package trigger

import (
	"iter"
	"slices"
	"time"
)

// HorizonDays bounds how far ahead one TriggerTimes call looks. It is a fixed
// policy: callers re-derive a fresh batch once the previous one is consumed.
const HorizonDays = 10

// Schedule owns an ordered set of windows. Insertion order is kept for
// rendering; trigger order is always chronological.
type Schedule struct {
	windows []Window

	// WindowExpiration makes range triggers expire at the end of their window.
	WindowExpiration bool
}

// ParseSchedule parses the textual window list into a Schedule.
func ParseSchedule(text string) (*Schedule, error) {
	ws, err := ParseWindows(text)
	if err != nil {
		return nil, err
	}
	return &Schedule{windows: ws}, nil
}

func NewSchedule(windows ...Window) *Schedule {
	return &Schedule{windows: slices.Clone(windows)}
}

func (s *Schedule) Windows() []Window { return slices.Clone(s.windows) }

func (s *Schedule) Len() int { return len(s.windows) }

// String is the canonical, persistable form of the window list.
func (s *Schedule) String() string { return RenderWindows(s.windows) }

// TriggerTimes yields the merged, ascending trigger times of every window over
// the next HorizonDays days.
//
// Each interval window contributes one trigger per horizon day. Weekday windows
// contribute one trigger per distinct matching day that falls within
// HorizonDays calendar days of after's day. Triggers with identical instants
// are yielded in window insertion order.
//
// The sequence is lazy; stopping early skips the remaining resolutions.
// maxAge <= 0 means triggers do not age out.
func (s *Schedule) TriggerTimes(reference, after time.Time, maxAge time.Duration, rng Rand) iter.Seq[TriggerTime] {
	return func(yield func(TriggerTime) bool) {
		if len(s.windows) == 0 {
			return
		}
		if rng == nil {
			rng = newRand()
		}

		n := len(s.windows)
		next := make([]func() (TriggerTime, bool), n)
		for i, w := range s.windows {
			pull, stop := iter.Pull(s.occurrences(i, w, reference, after, maxAge, rng))
			defer stop()
			next[i] = pull
		}

		heads := make([]TriggerTime, n)
		live := make([]bool, n)
		for i := range next {
			heads[i], live[i] = next[i]()
		}

		for {
			best := -1
			for i := range heads {
				if !live[i] {
					continue
				}
				if best < 0 || heads[i].Trigger.Before(heads[best].Trigger) {
					best = i
				}
			}
			if best < 0 {
				return
			}
			if !yield(heads[best]) {
				return
			}
			heads[best], live[best] = next[best]()
		}
	}
}

// Collect materializes the full horizon.
func (s *Schedule) Collect(reference, after time.Time, maxAge time.Duration, rng Rand) []TriggerTime {
	return slices.Collect(s.TriggerTimes(reference, after, maxAge, rng))
}

// Next returns the earliest trigger, if any window exists.
func (s *Schedule) Next(reference, after time.Time, maxAge time.Duration, rng Rand) (TriggerTime, bool) {
	for tt := range s.TriggerTimes(reference, after, maxAge, rng) {
		return tt, true
	}
	return TriggerTime{}, false
}

// occurrences resolves the window at index idx once per day, in ascending
// order. Interval windows step one calendar day from their first occurrence;
// weekday windows keep the distinct days within the horizon.
func (s *Schedule) occurrences(idx int, w Window, reference, after time.Time, maxAge time.Duration, rng Rand) iter.Seq[TriggerTime] {
	return func(yield func(TriggerTime) bool) {
		after := after.In(reference.Location())
		start := midnight(after)
		first := w.occurrenceDay(reference, after)
		var last time.Time
		for i := range HorizonDays {
			day := addDays(first, i)
			if w.HasWeekday {
				day = w.occurrenceDay(reference, after.AddDate(0, 0, i))
				if day.Equal(last) || daysBetween(start, day) >= HorizonDays {
					continue
				}
				last = day
			}
			tt := w.resolveOn(day, reference, s.WindowExpiration, maxAge, rng)
			tt.Window = idx
			if !yield(tt) {
				return
			}
		}
	}
}
