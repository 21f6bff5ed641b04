package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on id).
func (db *DB) UpsertMessage(m *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (id, sender_id, receiver_id, content, message_type, file_url, file_name, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			message_type = excluded.message_type,
			file_url = excluded.file_url,
			file_name = excluded.file_name,
			timestamp = excluded.timestamp`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, m.Kind, m.FileURL, m.FileName,
		m.Timestamp.UnixMilli(), m.CreatedAt.UnixMilli())
	return err
}

// ListConversation returns all cached messages between the two users in
// either direction, oldest first.
func (db *DB) ListConversation(userA, userB string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, sender_id, receiver_id, content, message_type, file_url, file_name, timestamp, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY timestamp ASC
		LIMIT ?`, userA, userB, userB, userA, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var ts, created int64
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Kind, &m.FileURL, &m.FileName, &ts, &created); err != nil {
			return nil, err
		}
		m.Timestamp = time.UnixMilli(ts)
		m.CreatedAt = time.UnixMilli(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
