package trigger

import (
	"errors"
	"testing"
	"time"
)

func TestParseWindowsCanonicalForm(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		count int
		want  string
	}{
		{name: "point", raw: "10:00", count: 1, want: "10:00"},
		{name: "range", raw: "10:00-10:30", count: 1, want: "10:00-10:30"},
		{name: "trailing comma", raw: "10:00,", count: 1, want: "10:00"},
		{name: "point and range", raw: "10:00,10:10-10:20", count: 2, want: "10:00, 10:10-10:20"},
		{name: "extra spaces", raw: "10:00,                10:10-10:20", count: 2, want: "10:00, 10:10-10:20"},
		{name: "dow point", raw: "Su-10:00", count: 1, want: "Su-10:00"},
		{name: "dow range", raw: "Mo-10:00-10:30", count: 1, want: "Mo-10:00-10:30"},
		{name: "dow trailing comma", raw: "Tu-10:00,", count: 1, want: "Tu-10:00"},
		{name: "dow and range", raw: "We-10:00,10:10-10:20", count: 2, want: "We-10:00, 10:10-10:20"},
		{name: "range dow spaces", raw: "10:00,                Th-10:10-10:20", count: 2, want: "10:00, Th-10:10-10:20"},
		{name: "single digit hour", raw: "Mo-8:34", count: 1, want: "Mo-08:34"},
		{name: "surrounding whitespace", raw: "  Fr-07:05 , Sa-23:00-23:59  ", count: 2, want: "Fr-07:05, Sa-23:00-23:59"},
		{name: "empty", raw: "", count: 0, want: ""},
		{name: "blank", raw: "   ", count: 0, want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ws, err := ParseWindows(tt.raw)
			if err != nil {
				t.Fatalf("ParseWindows(%q) error: %v", tt.raw, err)
			}
			if len(ws) != tt.count {
				t.Fatalf("len = %d, want %d", len(ws), tt.count)
			}
			if got := RenderWindows(ws); got != tt.want {
				t.Fatalf("RenderWindows = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseWindowsRoundTripIsIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"10:00",
		"10:00,10:10-10:20,",
		" Su-8:00 ,Mo-09:15-17:45,  23:59 ",
		"Th-0:00-0:01",
	}
	for _, in := range inputs {
		ws, err := ParseWindows(in)
		if err != nil {
			t.Fatalf("ParseWindows(%q) error: %v", in, err)
		}
		once := RenderWindows(ws)
		ws2, err := ParseWindows(once)
		if err != nil {
			t.Fatalf("ParseWindows(%q) error: %v", once, err)
		}
		if twice := RenderWindows(ws2); twice != once {
			t.Fatalf("render not idempotent: %q -> %q", once, twice)
		}
	}
}

func TestParseWindowFields(t *testing.T) {
	t.Parallel()
	w, err := ParseWindow("Sa-12:00-14:30")
	if err != nil {
		t.Fatalf("ParseWindow error: %v", err)
	}
	if !w.HasWeekday || w.Weekday != time.Saturday {
		t.Fatalf("weekday = %v (has=%v), want Saturday", w.Weekday, w.HasWeekday)
	}
	if w.Start != (TimeOfDay{Hour: 12}) || w.End != (TimeOfDay{Hour: 14, Minute: 30}) {
		t.Fatalf("range = %v-%v, want 12:00-14:30", w.Start, w.End)
	}
	if !w.IsRange() {
		t.Fatal("expected range window")
	}
}

func TestParseWindowsMalformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		segment string
	}{
		{raw: "ab:cd", segment: "ab:cd"},
		{raw: "10:00, 25:00", segment: "25:00"},
		{raw: "10:60", segment: "10:60"},
		{raw: "10:30-10:00", segment: "10:30-10:00"},
		{raw: "10:00-10:00", segment: "10:00-10:00"},
		{raw: "Xx-10:00", segment: "Xx-10:00"},
		{raw: "Monday-10:00", segment: "Monday-10:00"},
		{raw: "10:00,,1000", segment: "1000"},
		{raw: "10:0", segment: "10:0"},
	}
	for _, tt := range tests {
		_, err := ParseWindows(tt.raw)
		if err == nil {
			t.Fatalf("ParseWindows(%q): expected error", tt.raw)
		}
		if !errors.Is(err, ErrMalformedWindowSpec) {
			t.Fatalf("ParseWindows(%q) error = %v, want ErrMalformedWindowSpec", tt.raw, err)
		}
		var mwe *MalformedWindowSpecError
		if !errors.As(err, &mwe) {
			t.Fatalf("ParseWindows(%q) error type = %T", tt.raw, err)
		}
		if mwe.Segment != tt.segment {
			t.Fatalf("Segment = %q, want %q", mwe.Segment, tt.segment)
		}
	}
}
