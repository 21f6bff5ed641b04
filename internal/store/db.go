package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection for the app-owned cache.db. The cache
// mirrors the hosted store so the client renders instantly and ingestion
// stays idempotent across reconnects.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*DB, error) {
	opts := url.Values{}
	opts.Set("_journal_mode", "WAL")
	opts.Set("_busy_timeout", "5000")
	opts.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", path+"?"+opts.Encode())
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}
	return &DB{db}, nil
}
