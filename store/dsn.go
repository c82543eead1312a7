package store

import (
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

// Open connects to the SQLite file at path using rollback-journal mode
// (not WAL, per the Durable Store's filesystem-portability assumption)
// and a busy_timeout pragma, and pins MaxOpenConns to 1 so the process
// never hands two goroutines separate connections that could both
// attempt a write at once; relying purely on SQLite's own file locking
// is the slower, flakier path.
func Open(path string) (*bun.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(DELETE)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

// OpenMemory opens an in-memory database, for tests.
func OpenMemory() (*bun.DB, error) {
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}
