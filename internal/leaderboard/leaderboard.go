// internal/leaderboard/leaderboard.go
//
// Match records and the leaderboards computed from them.
// Write side: Record stores one row per won game (at most once per game id).
// Read side:
//   - MostWins:       games won per user, ties by lower average attempts.
//   - FewestAttempts: each user's best game, fewest attempts then fastest.
//   - Fastest:        each user's best game, fastest then fewest attempts.
//   - Daily:          winners of one date's daily card.
//   - UserStats:      one player's aggregates per mode.
//   - Summary:        the three per-mode boards fetched concurrently.

package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robalobadob/cardle/internal/db"
	"github.com/robalobadob/cardle/internal/game"
)

// ErrAlreadyRecorded is returned when a game id already has a match record.
var ErrAlreadyRecorded = errors.New("match already recorded")

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Metric selects a per-mode ranking.
type Metric string

const (
	MetricWins    Metric = "wins"
	MetricFewest  Metric = "fewest"
	MetricFastest Metric = "fastest"
)

// ParseMetric validates a client-supplied metric. Empty means wins.
func ParseMetric(s string) (Metric, bool) {
	switch Metric(s) {
	case "", MetricWins:
		return MetricWins, true
	case MetricFewest, MetricFastest:
		return Metric(s), true
	}
	return "", false
}

// ClampLimit applies the default and the upper bound to a caller limit.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// Match is a won game.
type Match struct {
	GameID     string
	UserID     string
	Name       string
	Email      string
	Mode       game.Mode
	CardName   string
	Attempts   int
	TimeSpent  time.Duration
	FinishedAt time.Time
}

// Entry is one leaderboard row. Which fields are set depends on the board.
type Entry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Wins        int       `json:"wins,omitempty"`
	AvgAttempts float64   `json:"avgAttempts,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	TimeSpentMs int64     `json:"timeSpentMs,omitempty"`
	CardName    string    `json:"cardName,omitempty"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`
}

// ModeStats aggregates one player's wins in a mode.
type ModeStats struct {
	Mode         game.Mode `json:"mode"`
	Wins         int       `json:"wins"`
	AvgAttempts  float64   `json:"avgAttempts"`
	BestAttempts int       `json:"bestAttempts"`
	FastestMs    int64     `json:"fastestMs"`
	LastWonAt    time.Time `json:"lastWonAt"`
	DailyStreak  int       `json:"dailyStreak,omitempty"`
	DailyPlayed  int       `json:"dailyPlayed,omitempty"`
}

// Board is the aggregator over the matches and daily_plays tables.
type Board struct{ db *sql.DB }

func New(db *sql.DB) *Board { return &Board{db: db} }

// Record persists m. A second record for the same game id fails with
// ErrAlreadyRecorded.
func (b *Board) Record(ctx context.Context, m Match) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO matches(game_id, user_id, name, email, mode, card_name, attempts, time_spent_ms, finished_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		m.GameID, m.UserID, m.Name, m.Email, string(m.Mode), m.CardName,
		m.Attempts, m.TimeSpent.Milliseconds(), m.FinishedAt.UnixMilli(),
	)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// Top dispatches to the board for metric.
func (b *Board) Top(ctx context.Context, mode game.Mode, metric Metric, limit int) ([]Entry, error) {
	switch metric {
	case MetricFewest:
		return b.FewestAttempts(ctx, mode, limit)
	case MetricFastest:
		return b.Fastest(ctx, mode, limit)
	default:
		return b.MostWins(ctx, mode, limit)
	}
}

// MostWins ranks players by number of games won in mode.
func (b *Board) MostWins(ctx context.Context, mode game.Mode, limit int) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT user_id, MAX(name), COUNT(*) AS wins, AVG(attempts) AS avg_attempts
		FROM matches
		WHERE mode = ?
		GROUP BY user_id
		ORDER BY wins DESC, avg_attempts ASC, MIN(finished_at) ASC
		LIMIT ?`, string(mode), ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("most wins: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e := Entry{Rank: len(out) + 1}
		if err := rows.Scan(&e.UserID, &e.Name, &e.Wins, &e.AvgAttempts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FewestAttempts ranks each player's best game: fewest attempts, then fastest.
func (b *Board) FewestAttempts(ctx context.Context, mode game.Mode, limit int) ([]Entry, error) {
	return b.bestGames(ctx, mode, "attempts ASC, time_spent_ms ASC, finished_at ASC", limit)
}

// Fastest ranks each player's best game: fastest, then fewest attempts.
func (b *Board) Fastest(ctx context.Context, mode game.Mode, limit int) ([]Entry, error) {
	return b.bestGames(ctx, mode, "time_spent_ms ASC, attempts ASC, finished_at ASC", limit)
}

// bestGames keeps one row per user, the first under order, and ranks those
// rows by the same order. order is one of the fixed strings above.
func (b *Board) bestGames(ctx context.Context, mode game.Mode, order string, limit int) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT user_id, name, attempts, time_spent_ms, card_name, finished_at
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY `+order+`) AS rn
			FROM matches
			WHERE mode = ?
		)
		WHERE rn = 1
		ORDER BY `+order+`
		LIMIT ?`, string(mode), ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("best games: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e  = Entry{Rank: len(out) + 1}
			ms int64
		)
		if err := rows.Scan(&e.UserID, &e.Name, &e.Attempts, &e.TimeSpentMs, &e.CardName, &ms); err != nil {
			return nil, err
		}
		e.FinishedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Daily ranks the winners of date: fastest, then fewest attempts, then
// earliest start.
func (b *Board) Daily(ctx context.Context, date string, limit int) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT d.user_id, COALESCE(u.username, ''), d.attempts, d.elapsed_ms
		FROM daily_plays d
		LEFT JOIN users u ON u.id = d.user_id
		WHERE d.date = ? AND d.won = 1
		ORDER BY d.elapsed_ms ASC, d.attempts ASC, d.started_at ASC
		LIMIT ?`, date, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("daily leaderboard: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e := Entry{Rank: len(out) + 1}
		if err := rows.Scan(&e.UserID, &e.Name, &e.Attempts, &e.TimeSpentMs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UserStats returns the player's aggregates for every mode with at least one win.
func (b *Board) UserStats(ctx context.Context, userID string) ([]ModeStats, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT mode, COUNT(*), AVG(attempts), MIN(attempts), MIN(time_spent_ms), MAX(finished_at)
		FROM matches
		WHERE user_id = ?
		GROUP BY mode
		ORDER BY mode`, userID)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	out := []ModeStats{}
	for rows.Next() {
		var (
			s    ModeStats
			last int64
		)
		if err := rows.Scan(&s.Mode, &s.Wins, &s.AvgAttempts, &s.BestAttempts, &s.FastestMs, &last); err != nil {
			rows.Close()
			return nil, err
		}
		s.LastWonAt = time.UnixMilli(last).UTC()
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	played, streak, err := b.dailyHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	if played > 0 {
		idx := -1
		for i := range out {
			if out[i].Mode == game.ModeDaily {
				idx = i
			}
		}
		if idx < 0 {
			out = append(out, ModeStats{Mode: game.ModeDaily})
			idx = len(out) - 1
		}
		out[idx].DailyPlayed = played
		out[idx].DailyStreak = streak
	}
	return out, nil
}

// dailyHistory counts the player's finished daily plays and the run of
// consecutive won dates ending at the most recent finished play.
func (b *Board) dailyHistory(ctx context.Context, userID string) (played, streak int, err error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT date, won FROM daily_plays
		WHERE user_id = ? AND finished = 1
		ORDER BY date DESC`, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("daily history: %w", err)
	}
	defer rows.Close()

	var (
		prev     time.Time
		counting = true
	)
	for rows.Next() {
		var (
			date string
			won  bool
		)
		if err := rows.Scan(&date, &won); err != nil {
			return 0, 0, err
		}
		played++
		if !counting {
			continue
		}
		d, perr := time.Parse("2006-01-02", date)
		if perr != nil || !won || (!prev.IsZero() && !d.AddDate(0, 0, 1).Equal(prev)) {
			counting = false
			continue
		}
		streak++
		prev = d
	}
	return played, streak, rows.Err()
}

// Summary holds the three per-mode boards.
type Summary struct {
	Mode    game.Mode `json:"mode"`
	Wins    []Entry   `json:"wins"`
	Fewest  []Entry   `json:"fewest"`
	Fastest []Entry   `json:"fastest"`
}

// Summary fetches the three boards for mode concurrently.
func (b *Board) Summary(ctx context.Context, mode game.Mode, limit int) (Summary, error) {
	s := Summary{Mode: mode}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { s.Wins, err = b.MostWins(ctx, mode, limit); return })
	g.Go(func() (err error) { s.Fewest, err = b.FewestAttempts(ctx, mode, limit); return })
	g.Go(func() (err error) { s.Fastest, err = b.Fastest(ctx, mode, limit); return })
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return s, nil
}
