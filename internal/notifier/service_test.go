package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "promptd/pkg/logx"
)

func testConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		QueueSize:     8,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
	}
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery result")
		return nil
	}
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var got []string
	sender := SenderFunc(func(ctx context.Context, m Message) error {
		mu.Lock()
		got = append(got, m.Prompt)
		mu.Unlock()
		return nil
	})
	s := New(testConfig(), sender, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	res := make(chan error, 1)
	if err := s.Notify(context.Background(), Message{Prompt: "mood", Done: func(err error) { res <- err }}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if err := waitDone(t, res); err != nil {
		t.Fatalf("Done err = %v, want nil", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "mood" {
		t.Fatalf("sent = %v, want [mood]", got)
	}
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	sender := SenderFunc(func(ctx context.Context, m Message) error {
		if calls.Add(1) < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	s := New(testConfig(), sender, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	res := make(chan error, 1)
	_ = s.Notify(context.Background(), Message{Prompt: "p", Done: func(err error) { res <- err }})
	if err := waitDone(t, res); err != nil {
		t.Fatalf("Done err = %v, want nil", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestNotifyGivesUpAfterRetryMax(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var calls atomic.Int32
	sender := SenderFunc(func(ctx context.Context, m Message) error {
		calls.Add(1)
		return boom
	})
	s := New(testConfig(), sender, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	res := make(chan error, 1)
	_ = s.Notify(context.Background(), Message{Prompt: "p", Done: func(err error) { res <- err }})
	if err := waitDone(t, res); !errors.Is(err, boom) {
		t.Fatalf("Done err = %v, want %v", err, boom)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestExpiredMessageIsNotSent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		expiresIn time.Duration
		wantCalls int32
	}{
		{name: "already expired", expiresIn: -time.Second, wantCalls: 0},
		{name: "expires during backoff", expiresIn: 30 * time.Millisecond, wantCalls: 1},
	}
	for _, tt := range tests {
		var calls atomic.Int32
		sender := SenderFunc(func(ctx context.Context, m Message) error {
			calls.Add(1)
			return errors.New("flaky")
		})
		cfg := testConfig()
		cfg.RetryBase = 100 * time.Millisecond
		cfg.RetryMaxDelay = 100 * time.Millisecond
		s := New(cfg, sender, logx.Nop())
		s.Start(context.Background())

		res := make(chan error, 1)
		m := Message{Prompt: "p", Expiration: time.Now().Add(tt.expiresIn), Done: func(err error) { res <- err }}
		if err := s.Notify(context.Background(), m); err != nil {
			t.Fatalf("%s: Notify error: %v", tt.name, err)
		}
		if err := waitDone(t, res); !errors.Is(err, ErrExpired) {
			t.Fatalf("%s: Done err = %v, want ErrExpired", tt.name, err)
		}
		if got := calls.Load(); got != tt.wantCalls {
			t.Fatalf("%s: send calls = %d, want %d", tt.name, got, tt.wantCalls)
		}
		s.Stop(context.Background())
	}
}

func TestNotifyErrors(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Enabled = false
	s := New(cfg, nil, logx.Nop())
	if err := s.Notify(context.Background(), Message{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled Notify = %v, want %v", err, ErrDisabled)
	}

	s = New(testConfig(), nil, logx.Nop())
	if err := s.Notify(context.Background(), Message{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("unstarted Notify = %v, want %v", err, ErrStopped)
	}
}

func TestNotifyQueueFull(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	sender := SenderFunc(func(ctx context.Context, m Message) error {
		started <- struct{}{}
		<-release
		return nil
	})
	cfg := testConfig()
	cfg.QueueSize = 1
	s := New(cfg, sender, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())
	defer close(release)

	_ = s.Notify(context.Background(), Message{Prompt: "a"})
	<-started // worker holds "a"
	if err := s.Notify(context.Background(), Message{Prompt: "b"}); err != nil {
		t.Fatalf("Notify(b) = %v, want nil", err)
	}
	if err := s.Notify(context.Background(), Message{Prompt: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Notify(c) = %v, want %v", err, ErrQueueFull)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()
	var sent atomic.Int32
	sender := SenderFunc(func(ctx context.Context, m Message) error {
		sent.Add(1)
		return nil
	})
	s := New(testConfig(), sender, logx.Nop())
	s.Start(context.Background())
	for range 5 {
		if err := s.Notify(context.Background(), Message{Prompt: "p"}); err != nil {
			t.Fatalf("Notify error: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if sent.Load() != 5 {
		t.Fatalf("sent = %d, want 5", sent.Load())
	}
	if err := s.Notify(context.Background(), Message{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify after Stop = %v, want %v", err, ErrStopped)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("retryDelay(%d) = %v, want (0, %v]", attempt, d, cfg.RetryMaxDelay)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("retryDelay(1) = %v, want 70ms..130ms", d)
	}
}

func TestFormatText(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("x", 0)
	m := Message{Prompt: "mood", Expiration: time.Date(2024, 1, 1, 10, 5, 0, 0, loc)}
	if got := FormatText(m); !strings.HasPrefix(got, "mood\n") || !strings.Contains(got, "10:05") {
		t.Fatalf("FormatText = %q", got)
	}
	m = Message{Prompt: "mood", Text: " How are you? "}
	if got := FormatText(m); got != "How are you?" {
		t.Fatalf("FormatText = %q, want %q", got, "How are you?")
	}
}
