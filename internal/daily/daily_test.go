package daily

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/cardle/internal/db/dbtest"
)

func TestDateKey(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	assert.Equal(t, "2026-03-01", DateKey(time.Date(2026, 3, 2, 5, 0, 0, 0, loc)))
}

func TestCardIndex(t *testing.T) {
	day := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	a := CardIndex(day, "salt", 60)
	assert.Equal(t, a, CardIndex(day.Add(6*time.Hour), "salt", 60), "same date")
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 60)
	assert.Equal(t, 0, CardIndex(day, "salt", 0))

	// Over a month the pick should not be constant.
	seen := map[int]bool{}
	for i := 0; i < 30; i++ {
		seen[CardIndex(day.AddDate(0, 0, i), "salt", 60)] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestLoadPool(t *testing.T) {
	p, err := LoadPool("", "salt")
	require.NoError(t, err)
	assert.Greater(t, p.Len(), 50)
	assert.NotEmpty(t, p.CardFor(time.Now()))

	path := filepath.Join(t.TempDir(), "pool.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\n  Opt  \nShock\n"), 0o644))
	p, err = LoadPool(path, "salt")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	assert.Contains(t, []string{"Opt", "Shock"}, p.CardFor(time.Now()))

	require.NoError(t, os.WriteFile(path, []byte("# nothing\n"), 0o644))
	_, err = LoadPool(path, "salt")
	assert.Error(t, err)

	_, err = LoadPool(filepath.Join(t.TempDir(), "missing.txt"), "salt")
	assert.Error(t, err)
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore(dbtest.New(t))
	started := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	_, err := s.Find(ctx, "u1", "2026-05-04")
	assert.ErrorIs(t, err, ErrNotFound)

	p := Play{UserID: "u1", Date: "2026-05-04", GameID: "g1", CardName: "Opt", StartedAt: started}
	require.NoError(t, s.Begin(ctx, p))

	p.GameID = "g2"
	assert.ErrorIs(t, s.Begin(ctx, p), ErrAlreadyPlayed)

	// Other players and other dates are independent.
	require.NoError(t, s.Begin(ctx, Play{UserID: "u2", Date: "2026-05-04", GameID: "g3", CardName: "Opt", StartedAt: started}))
	require.NoError(t, s.Begin(ctx, Play{UserID: "u1", Date: "2026-05-05", GameID: "g4", CardName: "Shock", StartedAt: started}))

	got, err := s.Find(ctx, "u1", "2026-05-04")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GameID)
	assert.Equal(t, "Opt", got.CardName)
	assert.True(t, started.Equal(got.StartedAt))
	assert.False(t, got.Finished)

	require.NoError(t, s.Finish(ctx, "u1", "2026-05-04", true, 4, 90*time.Second))
	// A second finish does not overwrite the first.
	require.NoError(t, s.Finish(ctx, "u1", "2026-05-04", false, 9, time.Hour))

	got, err = s.Find(ctx, "u1", "2026-05-04")
	require.NoError(t, err)
	assert.True(t, got.Finished)
	assert.True(t, got.Won)
	assert.Equal(t, 4, got.Attempts)
	assert.Equal(t, 90*time.Second, got.Elapsed)

	assert.ErrorIs(t, s.Finish(ctx, "nobody", "2026-05-04", true, 1, 0), ErrNotFound)
}
