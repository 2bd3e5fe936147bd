package trigger

import (
	"strings"
	"time"
)

// Window is one recurring daily constraint: a point or a same-day range,
// optionally restricted to one weekday.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay

	HasEnd     bool
	Weekday    time.Weekday
	HasWeekday bool
}

// IsRange reports whether the window spans [Start, End) rather than a single instant.
func (w Window) IsRange() bool { return w.HasEnd }

// String renders the canonical segment form, e.g. "Mo-08:00-09:30".
func (w Window) String() string {
	var b strings.Builder
	if w.HasWeekday {
		b.WriteString(weekdayTokens[w.Weekday])
		b.WriteByte('-')
	}
	b.WriteString(w.Start.String())
	if w.HasEnd {
		b.WriteByte('-')
		b.WriteString(w.End.String())
	}
	return b.String()
}

var weekdayTokens = [7]string{"Su", "Mo", "Tu", "We", "Th", "Fr", "Sa"}

func parseWeekday(tok string) (time.Weekday, bool) {
	for i, t := range weekdayTokens {
		if t == tok {
			return time.Weekday(i), true
		}
	}
	return 0, false
}
