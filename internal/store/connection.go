package store

import (
	"database/sql"
	"time"
)

// UpsertConnection inserts or updates a chat connection. The normalized
// pair is the uniqueness key so a connection arriving by id and one
// arriving by pair never duplicate.
func (db *DB) UpsertConnection(c *Connection) error {
	_, err := db.Exec(`
		INSERT INTO chat_connections (id, user1_id, user2_id, last_message, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user1_id, user2_id) DO UPDATE SET
			last_message = excluded.last_message,
			updated_at = excluded.updated_at`,
		c.ID, c.User1ID, c.User2ID, c.LastMessage, c.UpdatedAt.UnixMilli())
	return err
}

// TouchConnectionPreview updates the denormalized last-message preview for
// the (normalized) pair, if the connection exists.
func (db *DB) TouchConnectionPreview(user1, user2, preview string, at time.Time) error {
	_, err := db.Exec(`
		UPDATE chat_connections SET last_message = ?, updated_at = ?
		WHERE user1_id = ? AND user2_id = ?`,
		preview, at.UnixMilli(), user1, user2)
	return err
}

// ListConnections returns the user's connections, most recent first.
func (db *DB) ListConnections(userID string, limit int) ([]Connection, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, user1_id, user2_id, last_message, updated_at
		FROM chat_connections
		WHERE user1_id = ? OR user2_id = ?
		ORDER BY updated_at DESC
		LIMIT ?`, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var conns []Connection
	for rows.Next() {
		var c Connection
		var updated int64
		if err := rows.Scan(&c.ID, &c.User1ID, &c.User2ID, &c.LastMessage, &updated); err != nil {
			return nil, err
		}
		c.UpdatedAt = time.UnixMilli(updated)
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// GetConnectionByPair returns the connection for a normalized pair, or nil.
func (db *DB) GetConnectionByPair(user1, user2 string) (*Connection, error) {
	var c Connection
	var updated int64
	err := db.QueryRow(`
		SELECT id, user1_id, user2_id, last_message, updated_at
		FROM chat_connections
		WHERE user1_id = ? AND user2_id = ?`, user1, user2).
		Scan(&c.ID, &c.User1ID, &c.User2ID, &c.LastMessage, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = time.UnixMilli(updated)
	return &c, nil
}
