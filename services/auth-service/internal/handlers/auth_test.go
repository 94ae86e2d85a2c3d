package handlers

import (
	"testing"

	"github.com/legacy-hub/legacyhub/services/auth-service/internal/storage"
)

func TestPasswordHashing(t *testing.T) {
	password := "pass123"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

func TestIssueJWTCarriesMemberClaims(t *testing.T) {
	signer := NewHS256Signer("test-secret")
	user := storage.User{
		ID:       "user-1",
		MemberID: "mem-1",
		Role:     "member",
	}

	token, err := issueJWT(user, signer)
	if err != nil {
		t.Fatalf("issueJWT failed: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Sub != "user-1" {
		t.Fatalf("sub = %q, want user-1", claims.Sub)
	}
	if claims.MemberID != "mem-1" {
		t.Fatalf("member_id = %q, want mem-1", claims.MemberID)
	}
	if claims.Role != "member" {
		t.Fatalf("role = %q, want member", claims.Role)
	}
}
