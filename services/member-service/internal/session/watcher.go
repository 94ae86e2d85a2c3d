// Package session re-evaluates live walk-in sessions on a wall-clock tick.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/entitlement"
)

// Live is one checked-in session as read from storage.
type Live struct {
	MembershipID string
	Start        time.Time
	MaxHours     *int
}

type Store interface {
	LiveSessions(ctx context.Context) ([]Live, error)
	ClearSession(ctx context.Context, membershipID string) error
}

// Observer receives a fresh countdown for every live session on each tick,
// including the final Expired one before the session is cleared.
type Observer func(membershipID string, cd entitlement.Countdown)

type Watcher struct {
	store     Store
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
	observers []Observer
}

type Config struct {
	Interval time.Duration
	Now      func() time.Time
}

func NewWatcher(store Store, logger *slog.Logger, cfg Config, observers ...Observer) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Watcher{
		store:     store,
		logger:    logger,
		interval:  cfg.Interval,
		now:       cfg.Now,
		observers: observers,
	}
}

func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("session sweep failed", "err", err)
			}
		}
	}
}

// Sweep runs one evaluation pass: every live session gets a fresh countdown
// pushed to the observers, and sessions past their cap are cleared.
func (w *Watcher) Sweep(ctx context.Context) error {
	sessions, err := w.store.LiveSessions(ctx)
	if err != nil {
		return err
	}
	now := w.now()

	for _, s := range sessions {
		cd := entitlement.RemainingSessionTime(s.Start, s.MaxHours, now)
		for _, fn := range w.observers {
			fn(s.MembershipID, cd)
		}
		if cd.Expired {
			if err := w.store.ClearSession(ctx, s.MembershipID); err != nil {
				w.logger.Error("clear expired session failed", "membership_id", s.MembershipID, "err", err)
				continue
			}
			w.logger.Info("session expired", "membership_id", s.MembershipID)
		}
	}
	return nil
}
