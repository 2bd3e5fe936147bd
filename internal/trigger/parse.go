package trigger

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedWindowSpec matches every *MalformedWindowSpecError via errors.Is.
var ErrMalformedWindowSpec = errors.New("malformed window spec")

// MalformedWindowSpecError identifies the segment that failed to parse.
type MalformedWindowSpecError struct {
	Segment string
	Reason  string
}

func (e *MalformedWindowSpecError) Error() string {
	return fmt.Sprintf("malformed window %q: %s", e.Segment, e.Reason)
}

func (e *MalformedWindowSpecError) Is(target error) bool { return target == ErrMalformedWindowSpec }

// Segment grammar: [DOW-]H{1,2}:MM[-H{1,2}:MM]
var reWindow = regexp.MustCompile(`^(?:([A-Za-z]{2})-)?(\d{1,2}):(\d{2})(?:-(\d{1,2}):(\d{2}))?$`)

// ParseWindows parses a comma-separated window list.
//
// Whitespace around segments is ignored and empty segments (a trailing comma,
// blank input) are dropped. Any other segment that does not match the grammar
// fails with a *MalformedWindowSpecError.
func ParseWindows(text string) ([]Window, error) {
	var out []Window
	for _, raw := range strings.Split(text, ",") {
		seg := strings.TrimSpace(raw)
		if seg == "" {
			continue
		}
		w, err := ParseWindow(seg)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// ParseWindow parses a single segment.
func ParseWindow(segment string) (Window, error) {
	seg := strings.TrimSpace(segment)
	m := reWindow.FindStringSubmatch(seg)
	if m == nil {
		return Window{}, &MalformedWindowSpecError{Segment: seg, Reason: "expected [DOW-]HH:MM or [DOW-]HH:MM-HH:MM"}
	}

	var w Window
	if m[1] != "" {
		dow, ok := parseWeekday(m[1])
		if !ok {
			return Window{}, &MalformedWindowSpecError{Segment: seg, Reason: fmt.Sprintf("unknown day of week %q (use Su, Mo, Tu, We, Th, Fr, Sa)", m[1])}
		}
		w.Weekday = dow
		w.HasWeekday = true
	}

	start, err := parseTimeOfDay(m[2], m[3])
	if err != nil {
		return Window{}, &MalformedWindowSpecError{Segment: seg, Reason: err.Error()}
	}
	w.Start = start

	if m[4] != "" {
		end, err := parseTimeOfDay(m[4], m[5])
		if err != nil {
			return Window{}, &MalformedWindowSpecError{Segment: seg, Reason: err.Error()}
		}
		if end.Duration() <= start.Duration() {
			return Window{}, &MalformedWindowSpecError{Segment: seg, Reason: "range end must be later than start on the same day"}
		}
		w.End = end
		w.HasEnd = true
	}
	return w, nil
}

func parseTimeOfDay(hh, mm string) (TimeOfDay, error) {
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute %q", mm)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// RenderWindows joins windows into the canonical ", "-separated form.
func RenderWindows(windows []Window) string {
	parts := make([]string, len(windows))
	for i, w := range windows {
		parts[i] = w.String()
	}
	return strings.Join(parts, ", ")
}
