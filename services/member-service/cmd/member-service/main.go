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
	"github.com/legacy-hub/legacyhub/services/member-service/internal/consumer"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/handlers"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/inbox"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/outbox"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/pricing"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/session"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "member-service")
	port, err := config.Port("PORT", "8083")
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

	members := storage.NewMemberRepository(pool)
	memberships := storage.NewMembershipRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	pricingProvider, err := pricing.NewBillingPricingProvider(logger, config.String("BILLING_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("pricing provider init failed; using static prices", "err", err)
		pricingProvider = pricing.NewStaticProvider()
	}

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// Live sessions are swept every second so expired walk-ins are closed
	// without any client keeping the page open.
	watcher := session.NewWatcher(memberships, logger, session.Config{Interval: time.Second})
	go watcher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	activationConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "member-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "billing.membership.activated.v1"),
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			MembershipID string `json:"membership_id"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.MembershipID == "" {
			logger.Error("missing membership_id in event", "topic", msg.Topic)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := memberships.SetPaymentStatus(ctx, tx, payload.MembershipID, model.PaymentStatusActive); err != nil {
			if storage.IsNotFound(err) {
				logger.Warn("activation for unknown membership", "membership_id", payload.MembershipID)
				return nil
			}
			return err
		}
		return tx.Commit(ctx)
	})
	go activationConsumer.Run(ctx)

	registrationConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "member-service"),
		Topic:   config.String("KAFKA_REGISTRATION_TOPIC", "auth.user.created.v1"),
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			MemberID string `json:"member_id"`
			Name     string `json:"name"`
			Email    string `json:"email"`
			Phone    string `json:"phone"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.MemberID == "" || payload.Name == "" {
			logger.Error("missing member_id or name in event", "topic", msg.Topic)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := members.CreateWithID(ctx, tx, payload.MemberID, &model.Member{
			Name:  payload.Name,
			Email: payload.Email,
			Phone: payload.Phone,
		}); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	go registrationConsumer.Run(ctx)

	memberHandler := handlers.NewMemberHandler(members, memberships, outboxRepo, pricingProvider, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/admin/member", memberHandler.AdminMember)
	mux.HandleFunc("/api/v1/admin/check-visit", memberHandler.CheckVisit)
	mux.HandleFunc("/api/v1/admin/confirm-cash-payment", memberHandler.ConfirmCashPayment)
	mux.HandleFunc("/api/v1/admin/walk-ins", memberHandler.WalkIns)
	mux.HandleFunc("/api/v1/members/me", memberHandler.Me)
	mux.HandleFunc("/api/v1/members/family", memberHandler.AddFamily)
	mux.HandleFunc("/api/v1/members/bookings", memberHandler.Bookings)
	mux.HandleFunc("/api/v1/members/session", memberHandler.Session)
	mux.HandleFunc("/api/v1/public/walk-in", memberHandler.RegisterWalkIn)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "member")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
