// internal/account/account.go
//
// Local player accounts.
// Responsibilities:
//   - Signup: username/password rules, optional email, bcrypt hashing.
//   - Login: case-insensitive username lookup + password check.
//   - Lookup by id (used by the auth middleware to reject tokens of
//     deleted users).

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/cardle/internal/db"
)

var (
	// ErrInvalidSignup wraps every signup rule violation.
	ErrInvalidSignup = errors.New("invalid signup")
	// ErrUsernameTaken is returned when the username already exists.
	ErrUsernameTaken = errors.New("username taken")
	// ErrInvalidCredentials is returned by Login for unknown users and bad passwords alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNotFound is returned by ByID.
	ErrNotFound = errors.New("user not found")
)

// User is a registered player.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store manages the users table.
type Store struct {
	db       *sql.DB
	validate *validator.Validate
	cost     int
	now      func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, validate: validator.New(), cost: bcrypt.DefaultCost, now: time.Now}
}

// Signup validates input, hashes the password and inserts a new user.
func (s *Store) Signup(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := s.validateSignup(username, email, password); err != nil {
		return nil, err
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(h),
		CreatedAt:    time.UnixMilli(s.now().UnixMilli()).UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Username, nullable(u.Email), u.PasswordHash, u.CreatedAt.UnixMilli())
	if db.IsUniqueViolation(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// validateSignup enforces username, email and password rules.
func (s *Store) validateSignup(u, email, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return fmt.Errorf("%w: username must be 3-24 chars", ErrInvalidSignup)
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("%w: username: letters, numbers, underscore only", ErrInvalidSignup)
		}
	}
	if err := s.validate.Var(email, "omitempty,email,max=254"); err != nil {
		return fmt.Errorf("%w: email is not valid", ErrInvalidSignup)
	}
	if len(p) < 8 || len(p) > 72 {
		// bcrypt ignores bytes past 72
		return fmt.Errorf("%w: password must be 8-72 chars", ErrInvalidSignup)
	}
	return nil
}

// Login checks a username/password pair.
func (s *Store) Login(ctx context.Context, username, password string) (*User, error) {
	u, err := s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, username, COALESCE(email, ''), password_hash, created_at
		 FROM users WHERE username = ?`, strings.TrimSpace(username)))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ByID loads a user by id.
func (s *Store) ByID(ctx context.Context, id string) (*User, error) {
	return s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, username, COALESCE(email, ''), password_hash, created_at
		 FROM users WHERE id = ?`, id))
}

func (s *Store) scan(row *sql.Row) (*User, error) {
	var (
		u       User
		created int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	return &u, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
