package users

import (
	"context"
	"errors"
	"testing"

	"github.com/umbusk1/bibliofep/pkg/postgres/pgtest"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestHashPasswordRejectsShort(t *testing.T) {
	if _, err := HashPassword("short", bcrypt.MinCost); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Admin@Example.COM "); got != "admin@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestStoreCreateAndAuthenticate(t *testing.T) {
	db := pgtest.Open(t)
	store := NewStore(db, bcrypt.MinCost)
	ctx := context.Background()

	u, err := store.Create(ctx, "Ana@Example.com", "s3cret-pass", RoleAdmin)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Email != "ana@example.com" || u.Role != RoleAdmin {
		t.Errorf("unexpected user %+v", u)
	}

	if _, err := store.Create(ctx, "ana@example.com", "another-pass", RoleViewer); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}

	got, err := store.Authenticate(ctx, "ANA@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("authenticated id %d, want %d", got.ID, u.ID)
	}

	if _, err := store.Authenticate(ctx, "ana@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.Authenticate(ctx, "nobody@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}
