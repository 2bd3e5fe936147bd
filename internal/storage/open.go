package storage

import (
	"context"
	"errors"
	"strings"

	logx "promptd/pkg/logx"
)

// Store is the persistence API used by the prompt service.
type Store interface {
	GetAnchor(ctx context.Context, prompt string) (a Anchor, ok bool, err error)
	PutAnchor(ctx context.Context, a Anchor) error
	DeleteAnchor(ctx context.Context, prompt string) error

	AppendDelivery(ctx context.Context, d Delivery) error
	// RecentDeliveries returns up to limit entries for prompt, newest first.
	RecentDeliveries(ctx context.Context, prompt string, limit int) ([]Delivery, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
