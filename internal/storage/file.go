package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "promptd/pkg/logx"
)

// fileStore is a dependency-free backend.
//
// Files:
//   - <prefix>.anchors.json      (snapshot, rewritten atomically on change)
//   - <prefix>.deliveries.jsonl  (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu          sync.Mutex
	anchorsPath string
	anchors     map[string]anchorRecord
	deliveries  *os.File
	logPath     string
}

type anchorRecord struct {
	Windows   string  `json:"windows"`
	Reference int64   `json:"reference"`
	LastFired int64   `json:"last_fired,omitempty"`
	Fired     []int64 `json:"fired,omitempty"`
}

type deliveryRecord struct {
	At         int64  `json:"at"`
	Prompt     string `json:"prompt"`
	Trigger    int64  `json:"trigger"`
	Expiration int64  `json:"expiration,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"err,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:         log,
		anchorsPath: prefix + ".anchors.json",
		logPath:     prefix + ".deliveries.jsonl",
		anchors:     map[string]anchorRecord{},
	}
	if b, err := os.ReadFile(s.anchorsPath); err == nil {
		if err := json.Unmarshal(b, &s.anchors); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.deliveries = f
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries == nil {
		return nil
	}
	err := s.deliveries.Close()
	s.deliveries = nil
	return err
}

func (s *fileStore) GetAnchor(_ context.Context, prompt string) (Anchor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.anchors[prompt]
	if !ok {
		return Anchor{}, false, nil
	}
	return Anchor{
		Prompt:    prompt,
		Windows:   r.Windows,
		Reference: fromNanos(r.Reference),
		LastFired: fromNanos(r.LastFired),
		Fired:     fromNanosList(r.Fired),
	}, true, nil
}

func (s *fileStore) PutAnchor(_ context.Context, a Anchor) error {
	if strings.TrimSpace(a.Prompt) == "" {
		return errors.New("anchor prompt required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchors[a.Prompt] = anchorRecord{
		Windows:   a.Windows,
		Reference: toNanos(a.Reference),
		LastFired: toNanos(a.LastFired),
		Fired:     toNanosList(a.Fired),
	}
	return s.flushAnchorsLocked()
}

func (s *fileStore) DeleteAnchor(_ context.Context, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.anchors[prompt]; !ok {
		return nil
	}
	delete(s.anchors, prompt)
	return s.flushAnchorsLocked()
}

func (s *fileStore) flushAnchorsLocked() error {
	b, err := json.Marshal(s.anchors)
	if err != nil {
		return err
	}
	tmp := s.anchorsPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.anchorsPath)
}

func (s *fileStore) AppendDelivery(_ context.Context, d Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries == nil {
		return errors.New("delivery log closed")
	}
	return json.NewEncoder(s.deliveries).Encode(deliveryRecord{
		At:         toNanos(d.At),
		Prompt:     d.Prompt,
		Trigger:    toNanos(d.Trigger),
		Expiration: toNanos(d.Expiration),
		Status:     d.Status,
		Error:      d.Error,
	})
}

// RecentDeliveries scans the whole log; the file driver is meant for small installs.
func (s *fileStore) RecentDeliveries(_ context.Context, prompt string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.logPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []Delivery
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r deliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Prompt != prompt {
			continue
		}
		all = append(all, Delivery{
			At:         fromNanos(r.At),
			Prompt:     r.Prompt,
			Trigger:    fromNanos(r.Trigger),
			Expiration: fromNanos(r.Expiration),
			Status:     r.Status,
			Error:      r.Error,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]Delivery, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func toNanosList(ts []time.Time) []int64 {
	if len(ts) == 0 {
		return nil
	}
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = toNanos(t)
	}
	return out
}

func fromNanosList(ns []int64) []time.Time {
	if len(ns) == 0 {
		return nil
	}
	out := make([]time.Time, len(ns))
	for i, n := range ns {
		out[i] = fromNanos(n)
	}
	return out
}
