package store

import (
	"database/sql"
	"time"
)

// UpsertCall inserts or updates a call row (idempotent on id).
func (db *DB) UpsertCall(c *Call) error {
	_, err := db.Exec(`
		INSERT INTO calls (id, caller_id, receiver_id, link, status, caller_accepted, receiver_accepted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			caller_accepted = excluded.caller_accepted,
			receiver_accepted = excluded.receiver_accepted,
			updated_at = excluded.updated_at`,
		c.ID, c.CallerID, c.ReceiverID, c.Link, c.Status, c.CallerAccepted, c.ReceiverAccepted,
		c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	return err
}

// GetCall returns a call by id, or nil.
func (db *DB) GetCall(id string) (*Call, error) {
	var c Call
	var created, updated int64
	err := db.QueryRow(`
		SELECT id, caller_id, receiver_id, link, status, caller_accepted, receiver_accepted, created_at, updated_at
		FROM calls WHERE id = ?`, id).
		Scan(&c.ID, &c.CallerID, &c.ReceiverID, &c.Link, &c.Status, &c.CallerAccepted, &c.ReceiverAccepted, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(created)
	c.UpdatedAt = time.UnixMilli(updated)
	return &c, nil
}

// ListCallHistory returns calls involving the user, newest first.
func (db *DB) ListCallHistory(userID string, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, caller_id, receiver_id, link, status, caller_accepted, receiver_accepted, created_at, updated_at
		FROM calls
		WHERE caller_id = ? OR receiver_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var calls []Call
	for rows.Next() {
		var c Call
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.CallerID, &c.ReceiverID, &c.Link, &c.Status, &c.CallerAccepted, &c.ReceiverAccepted, &created, &updated); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(created)
		c.UpdatedAt = time.UnixMilli(updated)
		calls = append(calls, c)
	}
	return calls, rows.Err()
}
