package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/legacy-hub/legacyhub/libs/db"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/email"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/outbox"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/sms"
	"github.com/legacy-hub/legacyhub/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	// FailSuffix marks recipients whose deliveries fail without touching a
	// real provider. Used by integration tests and demos.
	FailSuffix string
	// ResetURLBase is the page the password reset email links to; the raw
	// token is appended as a query parameter.
	ResetURLBase string
}

// Service turns domain events into member-facing emails and SMS messages.
// Every delivery attempt is persisted and mirrored to the outbox as
// notification.sent.v1 or notification.failed.v1.
type Service struct {
	pool          *db.Pool
	contacts      *storage.ContactsRepository
	notifications *storage.Repository
	outboxRepo    *outbox.Repository
	emailSender   email.Sender
	smsSender     sms.Sender
	logger        *slog.Logger
	cfg           Config
}

func NewService(
	pool *db.Pool,
	contacts *storage.ContactsRepository,
	notifications *storage.Repository,
	outboxRepo *outbox.Repository,
	emailSender email.Sender,
	smsSender sms.Sender,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.ResetURLBase == "" {
		cfg.ResetURLBase = "http://localhost:8080/reset-password?token="
	}
	return &Service{
		pool:          pool,
		contacts:      contacts,
		notifications: notifications,
		outboxRepo:    outboxRepo,
		emailSender:   emailSender,
		smsSender:     smsSender,
		logger:        logger,
		cfg:           cfg,
	}
}

// HandleUserCreated keeps the local contact projection current and sends the
// welcome email for new accounts.
func (s *Service) HandleUserCreated(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		MemberID string `json:"member_id"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Phone    string `json:"phone"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		s.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.MemberID == "" {
		s.logger.Error("missing member_id in event", "topic", msg.Topic)
		return nil
	}

	if err := s.contacts.Upsert(ctx, storage.Contact{
		MemberID: payload.MemberID,
		Name:     payload.Name,
		Email:    payload.Email,
		Phone:    payload.Phone,
	}); err != nil {
		return err
	}

	if payload.Email == "" {
		return nil
	}
	return s.deliver(ctx, delivery{
		MemberID:  payload.MemberID,
		EventType: msg.Topic,
		Channel:   channelEmail,
		Recipient: payload.Email,
		Subject:   "Welcome to Legacy Hub",
		Body:      welcomeBody(payload.Name),
	})
}

// HandleVisitRecorded confirms a front-desk check-in. SMS is preferred since
// the member is standing at the door, not at a mailbox.
func (s *Service) HandleVisitRecorded(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		MembershipID string `json:"membership_id"`
		MemberID     string `json:"member_id"`
		Tier         string `json:"tier"`
		Day          string `json:"day"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		s.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.MemberID == "" {
		s.logger.Error("missing member_id in event", "topic", msg.Topic)
		return nil
	}

	contact, ok, err := s.contacts.Get(ctx, payload.MemberID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("no contact for member, skipping", "member_id", payload.MemberID, "topic", msg.Topic)
		return nil
	}
	channel, recipient := pickChannel(contact.Phone, contact.Email)
	if channel == "" {
		s.logger.Warn("contact has no reachable address", "member_id", payload.MemberID)
		return nil
	}
	return s.deliver(ctx, delivery{
		MemberID:     payload.MemberID,
		MembershipID: payload.MembershipID,
		EventType:    msg.Topic,
		Channel:      channel,
		Recipient:    recipient,
		Subject:      "Checked in at Legacy Hub",
		Body:         visitBody(contact.Name, payload.Day),
	})
}

// HandleWalkInRegistered confirms a walk-in booking. Contact details travel
// in the event itself since walk-ins need no account.
func (s *Service) HandleWalkInRegistered(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		MembershipID   string `json:"membership_id"`
		MemberID       string `json:"member_id"`
		Name           string `json:"name"`
		Phone          string `json:"phone"`
		Email          string `json:"email"`
		Day            string `json:"day"`
		NumHours       int    `json:"num_hours"`
		AmountDueCents int64  `json:"amount_due_cents"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		s.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.MembershipID == "" {
		s.logger.Error("missing membership_id in event", "topic", msg.Topic)
		return nil
	}

	channel, recipient := pickChannel(payload.Phone, payload.Email)
	if channel == "" {
		s.logger.Warn("walk-in has no reachable address", "membership_id", payload.MembershipID)
		return nil
	}
	return s.deliver(ctx, delivery{
		MemberID:     payload.MemberID,
		MembershipID: payload.MembershipID,
		EventType:    msg.Topic,
		Channel:      channel,
		Recipient:    recipient,
		Subject:      "Your Legacy Hub walk-in booking",
		Body:         walkInBody(payload.Name, payload.Day, payload.NumHours, payload.AmountDueCents),
	})
}

// HandleMembershipActivated tells the member their payment landed and the
// membership is live.
func (s *Service) HandleMembershipActivated(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		MembershipID string `json:"membership_id"`
		MemberID     string `json:"member_id"`
		AmountCents  int64  `json:"amount_cents"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		s.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.MemberID == "" {
		s.logger.Error("missing member_id in event", "topic", msg.Topic)
		return nil
	}

	contact, ok, err := s.contacts.Get(ctx, payload.MemberID)
	if err != nil {
		return err
	}
	if !ok || contact.Email == "" {
		s.logger.Warn("no email for member, skipping", "member_id", payload.MemberID, "topic", msg.Topic)
		return nil
	}
	return s.deliver(ctx, delivery{
		MemberID:     payload.MemberID,
		MembershipID: payload.MembershipID,
		EventType:    msg.Topic,
		Channel:      channelEmail,
		Recipient:    contact.Email,
		Subject:      "Your Legacy Hub membership is active",
		Body:         activationBody(contact.Name, payload.AmountCents),
	})
}

// HandlePaymentFailed warns the member their card was declined so they can
// retry or pay cash at the desk.
func (s *Service) HandlePaymentFailed(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		PaymentID      string `json:"payment_id"`
		MemberID       string `json:"member_id"`
		AmountCents    int64  `json:"amount_cents"`
		FailureMessage string `json:"failure_message"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		s.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.MemberID == "" {
		s.logger.Error("missing member_id in event", "topic", msg.Topic)
		return nil
	}

	contact, ok, err := s.contacts.Get(ctx, payload.MemberID)
	if err != nil {
		return err
	}
	if !ok || contact.Email == "" {
		s.logger.Warn("no email for member, skipping", "member_id", payload.MemberID, "topic", msg.Topic)
		return nil
	}
	return s.deliver(ctx, delivery{
		MemberID:  payload.MemberID,
		EventType: msg.Topic,
		Channel:   channelEmail,
		Recipient: contact.Email,
		Subject:   "Legacy Hub payment did not go through",
		Body:      paymentFailedBody(contact.Name, payload.AmountCents, payload.FailureMessage),
	})
}

// HandlePasswordReset mails the reset link. This one never falls back to
// SMS: the link must land in the inbox that owns the account.
func (s *Service) HandlePasswordReset(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		UserID     string `json:"user_id"`
		MemberID   string `json:"member_id"`
		Email      string `json:"email"`
		ResetToken string `json:"reset_token"`
		ExpiresAt  string `json:"expires_at"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		s.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.Email == "" || payload.ResetToken == "" {
		s.logger.Error("missing email or reset_token in event", "topic", msg.Topic)
		return nil
	}

	return s.deliver(ctx, delivery{
		MemberID:  payload.MemberID,
		EventType: msg.Topic,
		Channel:   channelEmail,
		Recipient: payload.Email,
		Subject:   "Reset your Legacy Hub password",
		Body:      passwordResetBody(s.cfg.ResetURLBase+payload.ResetToken, payload.ExpiresAt),
	})
}

const (
	channelEmail = "email"
	channelSMS   = "sms"
)

type delivery struct {
	MemberID     string
	MembershipID string
	EventType    string
	Channel      string
	Recipient    string
	Subject      string
	Body         string
}

func (s *Service) deliver(ctx context.Context, d delivery) error {
	status := "sent"
	failureReason := ""
	providerID := ""

	if s.cfg.FailSuffix != "" && strings.HasSuffix(d.Recipient, s.cfg.FailSuffix) {
		status = "failed"
		failureReason = "simulated failure"
	}

	if status == "sent" {
		switch d.Channel {
		case channelEmail:
			if err := s.emailSender.Send(d.Recipient, d.Subject, d.Body); err != nil {
				status = "failed"
				failureReason = err.Error()
				s.logger.Error("email send failed", "err", err, "recipient", d.Recipient)
			} else {
				providerID = "smtp"
			}
		case channelSMS:
			if err := s.smsSender.Send(ctx, d.Recipient, d.Body); err != nil {
				status = "failed"
				failureReason = err.Error()
				s.logger.Error("sms send failed", "err", err, "recipient", d.Recipient)
			} else {
				providerID = s.smsSender.ProviderID()
			}
		default:
			status = "failed"
			failureReason = "unsupported channel: " + d.Channel
			s.logger.Error("unsupported channel", "channel", d.Channel)
		}
	}

	if err := s.notifications.Insert(ctx, storage.Notification{
		MemberID:     d.MemberID,
		MembershipID: d.MembershipID,
		EventType:    d.EventType,
		Channel:      d.Channel,
		Recipient:    d.Recipient,
		Payload:      map[string]any{"subject": d.Subject},
		Status:       status,
	}); err != nil {
		s.logger.Error("failed to persist notification", "err", err)
		return err
	}

	if status == "failed" {
		if err := s.writeOutbox(ctx, d, "notification.failed.v1", map[string]any{
			"member_id":    d.MemberID,
			"event_type":   d.EventType,
			"channel":      d.Channel,
			"error_reason": failureReason,
			"failed_at":    time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			s.logger.Error("failed to enqueue notification.failed", "err", err)
			return err
		}
	} else {
		if err := s.writeOutbox(ctx, d, "notification.sent.v1", map[string]any{
			"member_id":   d.MemberID,
			"event_type":  d.EventType,
			"channel":     d.Channel,
			"provider_id": providerID,
			"sent_at":     time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			s.logger.Error("failed to enqueue notification.sent", "err", err)
			return err
		}
	}

	s.logger.Info("notification processed", "event_type", d.EventType, "channel", d.Channel, "status", status)
	return nil
}

func (s *Service) writeOutbox(ctx context.Context, d delivery, eventType string, payload map[string]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	aggregateID := d.MemberID
	if aggregateID == "" {
		aggregateID = d.Recipient
	}
	if err := s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// pickChannel prefers SMS when a phone number is known, falling back to
// email. Returns ("", "") when neither is usable.
func pickChannel(phone, emailAddr string) (string, string) {
	if strings.TrimSpace(phone) != "" {
		return channelSMS, strings.TrimSpace(phone)
	}
	if strings.TrimSpace(emailAddr) != "" {
		return channelEmail, strings.TrimSpace(emailAddr)
	}
	return "", ""
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func greeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Hello,"
	}
	return "Hello " + name + ","
}

func welcomeBody(name string) string {
	return fmt.Sprintf("%s\n\nYour Legacy Hub account is ready. Pick a tier and book your first visit from the member portal.", greeting(name))
}

func visitBody(name, day string) string {
	return fmt.Sprintf("%s\n\nYou are checked in for %s. Enjoy your visit.", greeting(name), day)
}

func walkInBody(name, day string, hours int, amountDueCents int64) string {
	return fmt.Sprintf(
		"%s\n\nYour walk-in booking for %s (%d hour(s)) is registered. Amount due at the desk: %s.",
		greeting(name), day, hours, formatCents(amountDueCents),
	)
}

func activationBody(name string, amountCents int64) string {
	return fmt.Sprintf("%s\n\nWe received your payment of %s and your membership is now active.", greeting(name), formatCents(amountCents))
}

func paymentFailedBody(name string, amountCents int64, reason string) string {
	body := fmt.Sprintf("%s\n\nYour payment of %s could not be completed.", greeting(name), formatCents(amountCents))
	if strings.TrimSpace(reason) != "" {
		body += " The card issuer said: " + reason + "."
	}
	body += " You can retry with another card or pay cash at the front desk."
	return body
}

func passwordResetBody(link, expiresAt string) string {
	body := "Hello,\n\nSomeone asked to reset the password for this account. If that was you, follow the link:\n\n" + link
	if expiresAt != "" {
		body += "\n\nThe link expires at " + expiresAt + "."
	}
	body += "\nIf you did not ask for this, ignore this email."
	return body
}
