package token

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	raw, expires, err := iss.Issue(7, "ana@example.com", "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Errorf("expiry should be in the future: %v", expires)
	}

	claims, err := iss.Verify(raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != 7 || claims.Email != "ana@example.com" || claims.Role != "admin" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, _, err := NewIssuer("a", time.Hour).Issue(1, "x@y.z", "viewer")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewIssuer("b", time.Hour).Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, _, err := iss.Issue(1, "x@y.z", "viewer")
	if err != nil {
		t.Fatal(err)
	}
	iss.now = time.Now
	if _, err := iss.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyMissing(t *testing.T) {
	if _, err := NewIssuer("s", time.Hour).Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}
