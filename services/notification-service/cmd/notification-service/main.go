package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/legacy-hub/legacyhub/libs/config"
	"github.com/legacy-hub/legacyhub/libs/db"
	"github.com/legacy-hub/legacyhub/libs/httpx"
	"github.com/legacy-hub/legacyhub/libs/kafkax"
	otelx "github.com/legacy-hub/legacyhub/libs/otel"
	"github.com/legacy-hub/legacyhub/libs/runtime"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/consumer"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/email"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/inbox"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/notify"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/outbox"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/sms"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	notificationsRepo := storage.NewRepository(pool)
	contactsRepo := storage.NewContactsRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@legacyhub.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	smsWebhookURL := config.String("SMS_WEBHOOK_URL", "")
	smsWebhookToken := config.String("SMS_WEBHOOK_TOKEN", "")
	var smsSender sms.Sender
	switch smsProvider {
	case "noop":
		smsSender = sms.NewNoopSender()
	default:
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	}

	svc := notify.NewService(pool, contactsRepo, notificationsRepo, outboxRepo, emailSender, smsSender, logger, notify.Config{
		FailSuffix:   config.String("NOTIFICATION_FAIL_SUFFIX", ""),
		ResetURLBase: config.String("PASSWORD_RESET_URL_BASE", ""),
	})

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	topics := []struct {
		envKey  string
		topic   string
		handler consumer.Handler
	}{
		{"KAFKA_TOPIC_USER_CREATED", "auth.user.created.v1", svc.HandleUserCreated},
		{"KAFKA_TOPIC_VISIT_RECORDED", "member.visit.recorded.v1", svc.HandleVisitRecorded},
		{"KAFKA_TOPIC_WALKIN_REGISTERED", "member.walkin.registered.v1", svc.HandleWalkInRegistered},
		{"KAFKA_TOPIC_MEMBERSHIP_ACTIVATED", "billing.membership.activated.v1", svc.HandleMembershipActivated},
		{"KAFKA_TOPIC_PAYMENT_FAILED", "billing.payment.failed.v1", svc.HandlePaymentFailed},
		{"KAFKA_TOPIC_PASSWORD_RESET", "auth.password.reset.requested.v1", svc.HandlePasswordReset},
	}
	for _, t := range topics {
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   config.String(t.envKey, t.topic),
		}, t.handler)
		go c.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
