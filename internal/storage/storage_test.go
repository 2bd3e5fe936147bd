package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "promptd/pkg/logx"
)

func openBoth(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, driver := range []string{"file", "sqlite"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, driver, "promptd.db")}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s) error: %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Logger{})
		if st != nil || err != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestAnchorRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ref := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for driver, st := range openBoth(t) {
		if _, ok, err := st.GetAnchor(ctx, "mood"); ok || err != nil {
			t.Fatalf("%s: GetAnchor on empty store = ok %v err %v", driver, ok, err)
		}
		a := Anchor{Prompt: "mood", Windows: "10:00, Mo-12:00-14:00", Reference: ref}
		if err := st.PutAnchor(ctx, a); err != nil {
			t.Fatalf("%s: PutAnchor error: %v", driver, err)
		}
		a.LastFired = ref.Add(26 * time.Hour)
		a.Fired = []time.Time{ref.Add(26 * time.Hour), {}}
		if err := st.PutAnchor(ctx, a); err != nil {
			t.Fatalf("%s: PutAnchor update error: %v", driver, err)
		}
		got, ok, err := st.GetAnchor(ctx, "mood")
		if err != nil || !ok {
			t.Fatalf("%s: GetAnchor = ok %v err %v", driver, ok, err)
		}
		if got.Windows != a.Windows || !got.Reference.Equal(ref) || !got.LastFired.Equal(a.LastFired) {
			t.Fatalf("%s: GetAnchor = %+v, want %+v", driver, got, a)
		}
		if len(got.Fired) != 2 || !got.Fired[0].Equal(a.Fired[0]) || !got.Fired[1].IsZero() {
			t.Fatalf("%s: Fired = %v, want %v", driver, got.Fired, a.Fired)
		}
		if err := st.DeleteAnchor(ctx, "mood"); err != nil {
			t.Fatalf("%s: DeleteAnchor error: %v", driver, err)
		}
		if _, ok, _ := st.GetAnchor(ctx, "mood"); ok {
			t.Fatalf("%s: anchor still present after delete", driver)
		}
	}
}

func TestRecentDeliveriesNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for driver, st := range openBoth(t) {
		for i := 0; i < 5; i++ {
			status := StatusDelivered
			if i%2 == 1 {
				status = StatusExpired
			}
			d := Delivery{At: base.Add(time.Duration(i) * time.Hour), Prompt: "mood", Trigger: base.Add(time.Duration(i) * time.Hour), Status: status}
			if err := st.AppendDelivery(ctx, d); err != nil {
				t.Fatalf("%s: AppendDelivery error: %v", driver, err)
			}
		}
		if err := st.AppendDelivery(ctx, Delivery{At: base, Prompt: "other", Status: StatusFailed, Error: "boom"}); err != nil {
			t.Fatalf("%s: AppendDelivery error: %v", driver, err)
		}

		got, err := st.RecentDeliveries(ctx, "mood", 3)
		if err != nil {
			t.Fatalf("%s: RecentDeliveries error: %v", driver, err)
		}
		if len(got) != 3 {
			t.Fatalf("%s: len = %d, want 3", driver, len(got))
		}
		if !got[0].At.Equal(base.Add(4*time.Hour)) || got[1].Status != StatusExpired {
			t.Fatalf("%s: unexpected order: %+v", driver, got)
		}
		if !got[0].Expiration.IsZero() {
			t.Fatalf("%s: expiration should be zero", driver)
		}

		other, err := st.RecentDeliveries(ctx, "other", 0)
		if err != nil || len(other) != 1 || other[0].Error != "boom" {
			t.Fatalf("%s: other = %+v, err %v", driver, other, err)
		}
	}
}
