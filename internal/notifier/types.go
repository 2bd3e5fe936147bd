package notifier

import (
	"context"
	"time"
)

// Config controls the async delivery pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Message is one prompt delivery.
type Message struct {
	Prompt     string
	Text       string
	Trigger    time.Time
	Expiration time.Time // zero when the trigger never expires

	// Done is called once with the final send result (nil on success).
	Done func(err error)
}

// Expired reports whether now is past a set expiration.
func (m Message) Expired(now time.Time) bool {
	return !m.Expiration.IsZero() && now.After(m.Expiration)
}

// Sender performs a single delivery attempt.
type Sender interface {
	Name() string
	Send(ctx context.Context, m Message) error
}
