// Package dbtest provides a migrated in-memory database for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robalobadob/cardle/internal/db"
)

// New returns a fresh migrated database closed at the end of the test.
func New(t testing.TB) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn))
	return conn
}
