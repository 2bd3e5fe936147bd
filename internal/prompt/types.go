package prompt

import (
	"context"
	"errors"
	"strconv"
	"time"

	"promptd/internal/notifier"
	"promptd/internal/trigger"
)

var ErrUnknownPrompt = errors.New("unknown prompt")

// Config is the scheduler part of the runtime configuration.
type Config struct {
	Timezone    string
	Refill      string // cron spec or descriptor; default "@every 1h"
	RefillBelow int    // refill prompts with fewer pending timers; default 3
	Prompts     []Definition
}

// Definition is one prompt with its parsed windows.
type Definition struct {
	Name     string
	Schedule *trigger.Schedule
	MaxAge   time.Duration // <= 0: triggers do not age out
	Message  string
}

// armKey identifies everything that changes which instants get armed.
func (d Definition) armKey() string {
	return d.Schedule.String() + "|" + strconv.FormatBool(d.Schedule.WindowExpiration) + "|" + d.MaxAge.String()
}

// Notifier is the delivery side the service hands fired prompts to.
type Notifier interface {
	Notify(ctx context.Context, m notifier.Message) error
}

// Status is a point-in-time view of one prompt.
type Status struct {
	Name      string
	Windows   string
	Reference time.Time
	Pending   int
	Next      time.Time // zero when nothing is armed
	Watermark time.Time
	LastFired time.Time
}

// Event types published on the bus set with WithEvents.
const (
	EventArmed     = "prompt.armed"
	EventExpired   = "prompt.expired"
	EventDelivered = "prompt.delivered"
	EventFailed    = "prompt.failed"
)

type Event struct {
	Type    string
	At      time.Time
	Prompt  string
	Trigger time.Time // zero for EventArmed
	Armed   int       // EventArmed only
	Err     string
}

// Timer is the handle returned by the AfterFunc given to WithClock.
type Timer interface{ Stop() bool }

type afterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
