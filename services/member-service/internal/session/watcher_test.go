package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/entitlement"
)

type fakeStore struct {
	sessions []Live
	cleared  []string
}

func (f *fakeStore) LiveSessions(ctx context.Context) ([]Live, error) {
	return f.sessions, nil
}

func (f *fakeStore) ClearSession(ctx context.Context, membershipID string) error {
	f.cleared = append(f.cleared, membershipID)
	return nil
}

func TestSweepClearsExpiredOnly(t *testing.T) {
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	one, two := 1, 2
	store := &fakeStore{sessions: []Live{
		{MembershipID: "ms-expired", Start: start, MaxHours: &one},
		{MembershipID: "ms-live", Start: start, MaxHours: &two},
		{MembershipID: "ms-uncapped", Start: start, MaxHours: nil},
	}}

	now := start.Add(90 * time.Minute)
	seen := map[string]entitlement.Countdown{}
	w := NewWatcher(store, slog.Default(), Config{Now: func() time.Time { return now }},
		func(id string, cd entitlement.Countdown) { seen[id] = cd })

	if err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if len(store.cleared) != 1 || store.cleared[0] != "ms-expired" {
		t.Fatalf("cleared = %v, want only ms-expired", store.cleared)
	}
	if !seen["ms-expired"].Expired {
		t.Fatal("expired session observer missed the final Expired countdown")
	}
	if got := seen["ms-live"].Display; got != "30:00" {
		t.Fatalf("live countdown = %q, want 30:00", got)
	}
	if !seen["ms-uncapped"].Unlimited {
		t.Fatal("uncapped session must report Unlimited")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := &fakeStore{}
	w := NewWatcher(store, slog.Default(), Config{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
