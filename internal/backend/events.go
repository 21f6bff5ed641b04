package backend

import "encoding/json"

// EventType classifies a row-level change delivered by the realtime feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// Tables the client consumes.
const (
	TableMessages    = "messages"
	TableConnections = "chat_connections"
	TableCalls       = "calls"
	TableProfiles    = "profiles"
)

// ChangeEvent is one change-feed delivery: the table, the event type and
// the new row state as raw JSON.
type ChangeEvent struct {
	Table string
	Type  EventType
	Row   json.RawMessage
}

// Decode unmarshals the new row state into dest.
func (e *ChangeEvent) Decode(dest any) error {
	return json.Unmarshal(e.Row, dest)
}
