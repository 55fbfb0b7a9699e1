// Package store persists game sessions behind a small key-value interface.
// Implementations may be backed by memory or Redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/robalobadob/cardle/internal/game"
)

// ErrNotFound is returned by Get for missing or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store defines the persistence interface for game sessions.
type Store interface {
	// Save persists or updates a session.
	Save(ctx context.Context, s *game.Session) error

	// Get retrieves a session by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*game.Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

func encode(s *game.Session) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return b, nil
}

func decode(b []byte) (*game.Session, error) {
	var s game.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
