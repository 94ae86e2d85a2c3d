package notify

import (
	"strings"
	"testing"
)

func TestPickChannelPrefersSMS(t *testing.T) {
	channel, recipient := pickChannel("+15550100", "a@b.test")
	if channel != channelSMS || recipient != "+15550100" {
		t.Fatalf("expected sms/+15550100, got %s/%s", channel, recipient)
	}

	channel, recipient = pickChannel("  ", "a@b.test")
	if channel != channelEmail || recipient != "a@b.test" {
		t.Fatalf("expected email fallback, got %s/%s", channel, recipient)
	}

	channel, recipient = pickChannel("", "")
	if channel != "" || recipient != "" {
		t.Fatalf("expected empty channel for unreachable contact, got %s/%s", channel, recipient)
	}
}

func TestFormatCents(t *testing.T) {
	if got := formatCents(2450); got != "24.50" {
		t.Fatalf("expected 24.50, got %s", got)
	}
	if got := formatCents(700); got != "7.00" {
		t.Fatalf("expected 7.00, got %s", got)
	}
	if got := formatCents(5); got != "0.05" {
		t.Fatalf("expected 0.05, got %s", got)
	}
}

func TestWalkInBodyIncludesAmountDue(t *testing.T) {
	body := walkInBody("Maya", "2026-09-01", 3, 3150)
	if !strings.Contains(body, "31.50") {
		t.Fatalf("expected amount in body, got %q", body)
	}
	if !strings.Contains(body, "Hello Maya,") {
		t.Fatalf("expected greeting in body, got %q", body)
	}
	if !strings.Contains(body, "3 hour(s)") {
		t.Fatalf("expected hours in body, got %q", body)
	}
}

func TestPasswordResetBodyCarriesLinkAndExpiry(t *testing.T) {
	body := passwordResetBody("http://localhost:8080/reset-password?token=abc", "2026-08-29T12:00:00Z")
	if !strings.Contains(body, "reset-password?token=abc") {
		t.Fatalf("expected link in body, got %q", body)
	}
	if !strings.Contains(body, "2026-08-29T12:00:00Z") {
		t.Fatalf("expected expiry in body, got %q", body)
	}
}
