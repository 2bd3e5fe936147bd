package trigger

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Duration is the offset of t from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// On returns the instant at t on the calendar day of day (in day's location).
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// TriggerTime is one concrete occurrence of a window.
//
// Expiration is the zero time when the trigger never goes stale.
type TriggerTime struct {
	Trigger              time.Time
	ReferenceTillTrigger time.Duration
	Expiration           time.Time

	// Occurrence is the window start on the day the trigger belongs to. Two
	// draws of one range window on one day share it.
	Occurrence time.Time
	// Window is the index of the producing window within its Schedule.
	Window int
}

func (t TriggerTime) HasExpiration() bool { return !t.Expiration.IsZero() }

// Expired reports whether now is past the expiration instant.
func (t TriggerTime) Expired(now time.Time) bool {
	return t.HasExpiration() && now.After(t.Expiration)
}

// Rand supplies jitter draws in [0, 1). *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
}
