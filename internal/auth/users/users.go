// Package users stores dashboard accounts in PostgreSQL and checks login
// credentials against bcrypt password hashes.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/umbusk1/bibliofep/pkg/postgres"
)

// Roles understood by the dashboard.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidRole        = errors.New("invalid role")
)

// User is an account without its password hash.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Store reads and writes the users table.
type Store struct {
	db     *postgres.Client
	cost   int
	logger *slog.Logger
}

// NewStore creates a Store hashing new passwords with the given bcrypt cost.
func NewStore(db *postgres.Client, cost int) *Store {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Store{
		db:     db,
		cost:   cost,
		logger: slog.Default().With("component", "user-store"),
	}
}

// NormalizeEmail lowercases and trims an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate returns the user when email and password match. Unknown
// emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var u User
	var hash string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, created_at FROM users WHERE email = $1`,
		NormalizeEmail(email),
	).Scan(&u.ID, &u.Email, &hash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if err := CheckPassword(hash, password); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create hashes password and inserts a new account.
func (s *Store) Create(ctx context.Context, email, password, role string) (*User, error) {
	if role != RoleAdmin && role != RoleViewer {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return nil, err
	}
	u := User{Email: NormalizeEmail(email), Role: role}
	err = s.db.DB.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, role) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		u.Email, hash, role,
	).Scan(&u.ID, &u.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, u.Email)
	}
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	s.logger.Info("user created", "email", u.Email, "role", role)
	return &u, nil
}

// SetPassword replaces the password of an existing account.
func (s *Store) SetPassword(ctx context.Context, email, password string) error {
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return err
	}
	result, err := s.db.DB.ExecContext(ctx,
		`UPDATE users SET password_hash = $1 WHERE email = $2`,
		hash, NormalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrInvalidCredentials
	}
	return nil
}

// List returns every account, oldest first.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, email, role, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a stored hash with a candidate password.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
