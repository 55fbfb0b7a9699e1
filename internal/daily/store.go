package daily

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalobadob/cardle/internal/db"
)

var (
	// ErrAlreadyPlayed is returned by Begin when the player already has a
	// daily row for the date.
	ErrAlreadyPlayed = errors.New("daily already played")
	// ErrNotFound is returned when the player has no row for the date.
	ErrNotFound = errors.New("daily play not found")
)

// Play is one player's attempt at a date's card.
type Play struct {
	UserID    string        `json:"userId"`
	Date      string        `json:"date"`
	GameID    string        `json:"gameId"`
	CardName  string        `json:"-"`
	StartedAt time.Time     `json:"startedAt"`
	Finished  bool          `json:"finished"`
	Won       bool          `json:"won"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"-"`
}

// Store persists daily plays in the daily_plays table.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Begin records the start of a daily game. The UNIQUE(user_id, date)
// constraint rejects a second row with ErrAlreadyPlayed.
func (s *Store) Begin(ctx context.Context, p Play) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_plays(user_id, date, game_id, card_name, started_at)
		 VALUES(?,?,?,?,?)`,
		p.UserID, p.Date, p.GameID, p.CardName, p.StartedAt.UnixMilli(),
	)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyPlayed
	}
	if err != nil {
		return fmt.Errorf("insert daily play: %w", err)
	}
	return nil
}

// Find returns the player's row for date.
func (s *Store) Find(ctx context.Context, userID, date string) (Play, error) {
	var (
		p         = Play{UserID: userID, Date: date}
		startedMs int64
		elapsedMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT game_id, card_name, started_at, finished, won, attempts, elapsed_ms
		 FROM daily_plays WHERE user_id=? AND date=?`, userID, date,
	).Scan(&p.GameID, &p.CardName, &startedMs, &p.Finished, &p.Won, &p.Attempts, &elapsedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Play{}, ErrNotFound
	}
	if err != nil {
		return Play{}, fmt.Errorf("find daily play: %w", err)
	}
	p.StartedAt = time.UnixMilli(startedMs).UTC()
	p.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	return p, nil
}

// Finish closes an open row. A row that is already finished is left as is.
func (s *Store) Finish(ctx context.Context, userID, date string, won bool, attempts int, elapsed time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE daily_plays SET finished=1, won=?, attempts=?, elapsed_ms=?
		 WHERE user_id=? AND date=? AND finished=0`,
		won, attempts, elapsed.Milliseconds(), userID, date,
	)
	if err != nil {
		return fmt.Errorf("finish daily play: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Find(ctx, userID, date); err != nil {
			return err
		}
	}
	return nil
}
