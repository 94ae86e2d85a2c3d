package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/legacy-hub/legacyhub/libs/db"
	"github.com/legacy-hub/legacyhub/services/billing-service/internal/payments"
	"github.com/legacy-hub/legacyhub/services/billing-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// StripeReconciler closes out card payments that got stuck in pending, e.g.
// when the webhook delivery was lost. Stripe is the source of truth for how
// the intent actually ended.
type StripeReconciler struct {
	pool        *db.Pool
	repo        *storage.Repository
	paySvc      *payments.Service
	logger      *slog.Logger
	stripeKey   string
	batchSize   int
	minAge      time.Duration
	advisoryKey int64
}

type StripeReconcilerConfig struct {
	StripeSecretKey string
	Interval        time.Duration
	BatchSize       int
	MinAge          time.Duration
	AdvisoryLockKey int64
}

func NewStripeReconciler(pool *db.Pool, repo *storage.Repository, paySvc *payments.Service, logger *slog.Logger, cfg StripeReconcilerConfig) *StripeReconciler {
	key := strings.TrimSpace(cfg.StripeSecretKey)
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = 50
	}
	minAge := cfg.MinAge
	if minAge <= 0 {
		// Give the webhook a head start before second-guessing Stripe.
		minAge = 10 * time.Minute
	}
	lockKey := cfg.AdvisoryLockKey
	if lockKey == 0 {
		// Stable-ish default; override via env if you run multiple billing instances.
		lockKey = 4242001
	}
	return &StripeReconciler{
		pool:        pool,
		repo:        repo,
		paySvc:      paySvc,
		logger:      logger,
		stripeKey:   key,
		batchSize:   bs,
		minAge:      minAge,
		advisoryKey: lockKey,
	}
}

func (r *StripeReconciler) Run(ctx context.Context, interval time.Duration) {
	if strings.TrimSpace(r.stripeKey) == "" {
		r.logger.Warn("stripe reconcile disabled: STRIPE_SECRET_KEY missing")
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	// Best-effort leader election for multi-instance deployments.
	// Only the instance holding the advisory lock will reconcile.
	for {
		if ctx.Err() != nil {
			return
		}
		var locked bool
		if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil {
			r.logger.Error("stripe reconcile: failed to acquire advisory lock", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if !locked {
			r.logger.Info("stripe reconcile: advisory lock held by another instance", "lock_key", r.advisoryKey)
			time.Sleep(30 * time.Second)
			continue
		}
		r.logger.Info("stripe reconcile: advisory lock acquired", "lock_key", r.advisoryKey)
		defer func() {
			_, _ = r.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
		}()
		break
	}

	stripe.Key = r.stripeKey
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on startup to self-heal faster after downtime.
	r.reconcileOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *StripeReconciler) reconcileOnce(ctx context.Context) {
	pending, err := r.repo.ListPendingCardPaymentsForReconcile(ctx, r.minAge, r.batchSize)
	if err != nil {
		r.logger.Error("stripe reconcile: failed to list pending payments", "err", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(p.StripePaymentIntentID) == "" {
			continue
		}

		pi, err := paymentintent.Get(p.StripePaymentIntentID, nil)
		if err != nil {
			r.logger.Warn("stripe reconcile: failed to fetch payment intent", "err", err, "stripe_payment_intent_id", p.StripePaymentIntentID, "payment_id", p.ID)
			continue
		}

		tx, err := r.repo.Begin(ctx)
		if err != nil {
			r.logger.Error("stripe reconcile: db begin failed", "err", err)
			return
		}

		applyErr := func() error {
			switch pi.Status {
			case stripe.PaymentIntentStatusSucceeded:
				return r.paySvc.ApplySucceeded(ctx, tx, pi.ID, time.Now().UTC())
			case stripe.PaymentIntentStatusCanceled:
				message := "payment intent canceled"
				if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
					message = pi.LastPaymentError.Msg
				}
				return r.paySvc.ApplyFailed(ctx, tx, pi.ID, message, time.Now().UTC())
			default:
				// Still settling on Stripe's side. Leave it pending.
				return nil
			}
		}()

		if applyErr != nil {
			_ = tx.Rollback(ctx)
			r.logger.Warn("stripe reconcile: apply failed", "err", applyErr, "payment_id", p.ID, "stripe_payment_intent_id", pi.ID)
			continue
		}
		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			r.logger.Warn("stripe reconcile: commit failed", "err", err, "payment_id", p.ID, "stripe_payment_intent_id", pi.ID)
			continue
		}
	}
}
