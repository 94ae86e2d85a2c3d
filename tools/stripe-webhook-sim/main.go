package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "gateway base url")
		evtType     = flag.String("type", getenv("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "stripe event type")
		intentID    = flag.String("intent-id", getenv("PAYMENT_INTENT_ID", ""), "payment intent id the billing service knows")
		memberID    = flag.String("member-id", getenv("MEMBER_ID", ""), "member_id metadata")
		memberships = flag.String("membership-ids", getenv("MEMBERSHIP_IDS", ""), "comma-separated membership_ids metadata")
		amount      = flag.Int64("amount-cents", 3500, "payment amount in cents")
		declineMsg  = flag.String("decline-message", "Your card was declined.", "last_payment_error message for failed events")
		secret      = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*intentID) == "" {
		fatal("PAYMENT_INTENT_ID is required")
	}

	now := time.Now().UTC()
	eventID := fmt.Sprintf("evt_test_%d", now.UnixNano())

	payload, err := buildEventJSON(eventID, *evtType, now, *intentID, *memberID, *memberships, *amount, *declineMsg)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/billing/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	fmt.Printf("status=%d\n", resp.StatusCode)
}

func buildEventJSON(eventID, eventType string, t time.Time, intentID, memberID, membershipIDs string, amountCents int64, declineMsg string) ([]byte, error) {
	created := t.Unix()
	intent := map[string]any{
		"id":       intentID,
		"object":   "payment_intent",
		"amount":   amountCents,
		"currency": "usd",
		"metadata": map[string]any{
			"member_id":      memberID,
			"membership_ids": membershipIDs,
		},
	}

	switch eventType {
	case "payment_intent.succeeded":
		intent["status"] = "succeeded"
	case "payment_intent.payment_failed":
		intent["status"] = "requires_payment_method"
		intent["last_payment_error"] = map[string]any{
			"message": declineMsg,
			"type":    "card_error",
		}
	case "payment_intent.canceled":
		intent["status"] = "canceled"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}

	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     created,
		"type":        eventType,
		"api_version": "2020-08-27",
		"data": map[string]any{
			"object": intent,
		},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
