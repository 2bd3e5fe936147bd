package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "promptd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// deliveryRetention bounds the delivery log; older rows are pruned periodically.
const deliveryRetention = 90 * 24 * time.Hour

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetAnchor(ctx context.Context, prompt string) (Anchor, bool, error) {
	var (
		a         = Anchor{Prompt: prompt}
		ref, last int64
		fired     string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT windows, reference, last_fired, fired FROM anchors WHERE prompt = ?`, prompt,
	).Scan(&a.Windows, &ref, &last, &fired)
	if errors.Is(err, sql.ErrNoRows) {
		return Anchor{}, false, nil
	}
	if err != nil {
		return Anchor{}, false, err
	}
	a.Reference = fromNanos(ref)
	a.LastFired = fromNanos(last)
	if a.Fired, err = decodeTimes(fired); err != nil {
		return Anchor{}, false, fmt.Errorf("anchor %s: %w", prompt, err)
	}
	return a, true, nil
}

func (s *sqliteStore) PutAnchor(ctx context.Context, a Anchor) error {
	if strings.TrimSpace(a.Prompt) == "" {
		return errors.New("anchor prompt required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anchors(prompt, windows, reference, last_fired, fired) VALUES(?,?,?,?,?)
		 ON CONFLICT(prompt) DO UPDATE SET windows=excluded.windows, reference=excluded.reference, last_fired=excluded.last_fired, fired=excluded.fired`,
		a.Prompt, a.Windows, toNanos(a.Reference), toNanos(a.LastFired), encodeTimes(a.Fired),
	)
	return err
}

func (s *sqliteStore) DeleteAnchor(ctx context.Context, prompt string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM anchors WHERE prompt = ?`, prompt)
	return err
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, d Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(at, prompt, trigger_at, expiration, status, err) VALUES(?,?,?,?,?,?)`,
		toNanos(d.At), d.Prompt, toNanos(d.Trigger), toNanos(d.Expiration), d.Status, nullStr(d.Error),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneDeliveries(pctx); perr != nil {
			s.log.Debug("delivery prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentDeliveries(ctx context.Context, prompt string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, trigger_at, expiration, status, COALESCE(err, '') FROM deliveries
		 WHERE prompt = ? ORDER BY at DESC, id DESC LIMIT ?`, prompt, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var at, trig, exp int64
		d := Delivery{Prompt: prompt}
		if err := rows.Scan(&at, &trig, &exp, &d.Status, &d.Error); err != nil {
			return nil, err
		}
		d.At, d.Trigger, d.Expiration = fromNanos(at), fromNanos(trig), fromNanos(exp)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) pruneDeliveries(ctx context.Context) error {
	cutoff := time.Now().Add(-deliveryRetention).UnixNano()
	_, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE at < ?`, cutoff)
	return err
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// encodeTimes stores a per-window time list as comma-separated unix nanos.
func encodeTimes(ts []time.Time) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = strconv.FormatInt(toNanos(t), 10)
	}
	return strings.Join(parts, ",")
}

func decodeTimes(s string) ([]time.Time, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ts := make([]time.Time, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ts[i] = fromNanos(n)
	}
	return ts, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
