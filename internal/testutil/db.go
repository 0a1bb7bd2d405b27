// Package testutil holds helpers shared by tests
package testutil

import (
	"path/filepath"
	"testing"

	"bitwise74/eats-api/db"
	"bitwise74/eats-api/pkg/security"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB returns a migrated in-memory SQLite database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	d, err := db.Connect(sqlite.Open(":memory:?_foreign_keys=on"))
	require.NoError(t, err)

	sqlDB, err := d.DB()
	require.NoError(t, err)

	// Every connection to :memory: is a new database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(d))

	return d
}

// NewFileDB returns a migrated SQLite database in a file private to t, opened
// the way the server opens it.
func NewFileDB(t testing.TB) *gorm.DB {
	t.Helper()

	d, err := db.Open(sqlite.Open(db.SQLiteDSN(filepath.Join(t.TempDir(), "eats.db"))))
	require.NoError(t, err)

	sqlDB, err := d.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return d
}

// Argon returns a cheap hasher so tests don't spend seconds on hashing.
func Argon() *security.ArgonHash {
	return &security.ArgonHash{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}
