package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "file": JSON snapshot + JSON Lines log
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Anchor is the persisted state of one prompt.
type Anchor struct {
	Prompt    string
	Windows   string // canonical window list the anchor belongs to
	Reference time.Time
	LastFired time.Time // zero when nothing fired yet

	// Fired holds, per window index, the start of the latest fired window
	// occurrence. Zero entries never fired.
	Fired []time.Time
}

// Delivery statuses.
const (
	StatusDelivered = "delivered"
	StatusExpired   = "expired"
	StatusFailed    = "failed"
)

// Delivery records what happened when a trigger fired.
type Delivery struct {
	At         time.Time
	Prompt     string
	Trigger    time.Time
	Expiration time.Time // zero when the trigger had none
	Status     string
	Error      string
}
