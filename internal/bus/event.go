package bus

import "time"

// Topic prefixes used across the client. Subscribers filter by prefix, so
// "rt." receives every realtime feed event while "rt.messages" receives
// only message rows.
const (
	TopicRealtime   = "rt."
	TopicMessage    = "message."
	TopicConnection = "connection."
	TopicCall       = "call."
	TopicSession    = "session."
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
