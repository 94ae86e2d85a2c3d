package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/legacy-hub/legacyhub/libs/config"
	"github.com/legacy-hub/legacyhub/libs/db"
	"github.com/legacy-hub/legacyhub/libs/httpx"
	"github.com/legacy-hub/legacyhub/libs/kafkax"
	otelx "github.com/legacy-hub/legacyhub/libs/otel"
	"github.com/legacy-hub/legacyhub/libs/runtime"
	"github.com/legacy-hub/legacyhub/services/analytics-service/internal/consumer"
	"github.com/legacy-hub/legacyhub/services/analytics-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const dayFormat = "2006-01-02"

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	sentConsumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topic:   "notification.sent.v1",
	}
	sentConsumer := consumer.New(logger, inboxRepo, sentConsumerCfg, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			MemberID  string `json:"member_id"`
			EventType string `json:"event_type"`
			Channel   string `json:"channel"`
			SentAt    string `json:"sent_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err)
			return nil
		}
		if payload.Channel == "" || payload.SentAt == "" {
			logger.Error("missing event fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.SentAt); err != nil {
			logger.Error("invalid sent_at", "err", err)
			return nil
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO notification_metrics (member_id, event_type, channel, occurred_at, status)
			VALUES (NULLIF($1, '')::uuid, $2, $3, $4, 'sent')
		`, payload.MemberID, payload.EventType, payload.Channel, payload.SentAt)
		if err != nil {
			logger.Error("failed to write metrics", "err", err)
			return err
		}

		if err := bumpNotificationAggregate(ctx, pool, payload.Channel, payload.SentAt, 1, 0); err != nil {
			logger.Error("failed to update daily notification metrics", "err", err)
			return err
		}

		logger.Info("notification metric recorded", "event_type", payload.EventType, "channel", payload.Channel)
		return nil
	})
	go sentConsumer.Run(ctx)

	failedConsumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topic:   "notification.failed.v1",
	}
	failedConsumer := consumer.New(logger, inboxRepo, failedConsumerCfg, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			MemberID    string `json:"member_id"`
			EventType   string `json:"event_type"`
			Channel     string `json:"channel"`
			ErrorReason string `json:"error_reason"`
			FailedAt    string `json:"failed_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid failed payload", "err", err)
			return nil
		}
		if payload.Channel == "" || payload.FailedAt == "" {
			logger.Error("missing failed fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.FailedAt); err != nil {
			logger.Error("invalid failed_at", "err", err)
			return nil
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO notification_metrics (member_id, event_type, channel, occurred_at, status)
			VALUES (NULLIF($1, '')::uuid, $2, $3, $4, 'failed')
		`, payload.MemberID, payload.EventType, payload.Channel, payload.FailedAt)
		if err != nil {
			logger.Error("failed to write failed metrics", "err", err)
			return err
		}

		if err := bumpNotificationAggregate(ctx, pool, payload.Channel, payload.FailedAt, 0, 1); err != nil {
			logger.Error("failed to update daily notification metrics", "err", err)
			return err
		}

		logger.Info("notification failure recorded", "event_type", payload.EventType, "channel", payload.Channel)
		return nil
	})
	go failedConsumer.Run(ctx)

	authAuditCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topic:   "auth.audit.v1",
	}
	authAuditConsumer := consumer.New(logger, inboxRepo, authAuditCfg, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			EventType string          `json:"event_type"`
			ActorID   string          `json:"actor_id"`
			Metadata  json.RawMessage `json:"metadata"`
			CreatedAt string          `json:"created_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid auth audit payload", "err", err)
			return nil
		}
		if payload.EventType == "" || payload.CreatedAt == "" {
			logger.Error("missing auth audit fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.CreatedAt); err != nil {
			logger.Error("invalid auth audit created_at", "err", err)
			return nil
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
			VALUES ($1, NULLIF($2, ''), $3, $4)
		`, payload.EventType, payload.ActorID, payload.Metadata, payload.CreatedAt)
		if err != nil {
			logger.Error("failed to write security audit event", "err", err)
			return err
		}

		logger.Info("security audit recorded", "event_type", payload.EventType)
		return nil
	})
	go authAuditConsumer.Run(ctx)

	// Attendance counters feed the front-desk dashboard: how many member
	// visits and walk-ins happened per day.
	handleAttendanceEvent := func(ctx context.Context, msg kafka.Message, kind string) error {
		var payload struct {
			MembershipID   string `json:"membership_id"`
			MemberID       string `json:"member_id"`
			Day            string `json:"day"`
			AmountDueCents int64  `json:"amount_due_cents"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid attendance payload", "err", err)
			return nil
		}
		if payload.MembershipID == "" || payload.Day == "" {
			logger.Error("missing attendance fields")
			return nil
		}
		day, err := time.Parse(dayFormat, payload.Day)
		if err != nil {
			logger.Error("invalid day", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)

		tx, err := pool.Begin(ctx)
		if err != nil {
			logger.Error("db begin failed", "err", err)
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx, `
			INSERT INTO attendance_events (event_id, event_type, membership_id, member_id, day)
			VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5::date)
			ON CONFLICT (event_id) DO NOTHING
		`, meta.EventID, meta.EventType, payload.MembershipID, payload.MemberID, day.UTC())
		if err != nil {
			logger.Error("failed to insert attendance event", "err", err)
			return err
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Commit(ctx)
			return nil
		}

		visitInc := 0
		walkInInc := 0
		var walkInCents int64
		if kind == "visit" {
			visitInc = 1
		} else if kind == "walkin" {
			walkInInc = 1
			walkInCents = payload.AmountDueCents
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_attendance_metrics (day, visit_count, walkin_count, walkin_due_cents)
			VALUES ($1::date, $2, $3, $4)
			ON CONFLICT (day)
			DO UPDATE SET visit_count = daily_attendance_metrics.visit_count + EXCLUDED.visit_count,
			              walkin_count = daily_attendance_metrics.walkin_count + EXCLUDED.walkin_count,
			              walkin_due_cents = daily_attendance_metrics.walkin_due_cents + EXCLUDED.walkin_due_cents,
			              updated_at = now()
		`, day.UTC(), visitInc, walkInInc, walkInCents); err != nil {
			logger.Error("failed to update daily metrics", "err", err)
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			logger.Error("failed to commit attendance metric", "err", err)
			return err
		}

		logger.Info("attendance metric recorded", "membership_id", payload.MembershipID, "event_type", meta.EventType)
		return nil
	}

	visitConsumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topic:   "member.visit.recorded.v1",
	}
	visitConsumer := consumer.New(logger, inboxRepo, visitConsumerCfg, func(ctx context.Context, msg kafka.Message) error {
		return handleAttendanceEvent(ctx, msg, "visit")
	})
	go visitConsumer.Run(ctx)

	walkInConsumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topic:   "member.walkin.registered.v1",
	}
	walkInConsumer := consumer.New(logger, inboxRepo, walkInConsumerCfg, func(ctx context.Context, msg kafka.Message) error {
		return handleAttendanceEvent(ctx, msg, "walkin")
	})
	go walkInConsumer.Run(ctx)

	revenueConsumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topic:   "billing.membership.activated.v1",
	}
	revenueConsumer := consumer.New(logger, inboxRepo, revenueConsumerCfg, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			MembershipID string `json:"membership_id"`
			MemberID     string `json:"member_id"`
			PaymentID    string `json:"payment_id"`
			AmountCents  int64  `json:"amount_cents"`
			ActivatedAt  string `json:"activated_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid activation payload", "err", err)
			return nil
		}
		if payload.MembershipID == "" || payload.ActivatedAt == "" {
			logger.Error("missing activation fields")
			return nil
		}
		activatedAt, err := time.Parse(time.RFC3339, payload.ActivatedAt)
		if err != nil {
			logger.Error("invalid activated_at", "err", err)
			return nil
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO daily_revenue_metrics (day, activation_count, amount_cents)
			VALUES ($1::date, 1, $2)
			ON CONFLICT (day)
			DO UPDATE SET activation_count = daily_revenue_metrics.activation_count + 1,
			              amount_cents = daily_revenue_metrics.amount_cents + EXCLUDED.amount_cents,
			              updated_at = now()
		`, activatedAt.UTC(), payload.AmountCents)
		if err != nil {
			logger.Error("failed to update revenue metrics", "err", err)
			return err
		}

		logger.Info("revenue metric recorded", "membership_id", payload.MembershipID, "payment_id", payload.PaymentID)
		return nil
	})
	go revenueConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func bumpNotificationAggregate(ctx context.Context, pool *db.Pool, channel, ts string, sentInc, failedInc int) error {
	if channel == "" || ts == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO daily_notification_metrics (day, channel, sent_count, failed_count)
		VALUES ($1::date, $2, $3, $4)
		ON CONFLICT (day, channel)
		DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
		              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
		              updated_at = now()
	`, t.UTC(), channel, sentInc, failedInc)
	return err
}
