package store

import "time"

// Message kinds. Anything other than KindText must carry a file URL.
const (
	KindText  = "text"
	KindFile  = "file"
	KindImage = "image"
	KindVoice = "voice"
)

// Call statuses. Pending is the only non-terminal interactive state.
const (
	CallPending   = "pending"
	CallAccepted  = "accepted"
	CallRejected  = "rejected"
	CallCompleted = "completed"
)

// Message is one chat message. JSON tags match the hosted store's column
// names so rows decode straight off the REST and realtime surfaces.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Kind       string    `json:"message_type"`
	FileURL    string    `json:"file_url,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordID implements livefeed.Record.
func (m Message) RecordID() string { return m.ID }

// Connection is a chat pairing between two users. The participant pair is
// stored normalized (User1ID lexicographically smaller) so the unordered
// pair is unique.
type Connection struct {
	ID          string    `json:"id"`
	User1ID     string    `json:"user1_id"`
	User2ID     string    `json:"user2_id"`
	LastMessage string    `json:"last_message"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecordID implements livefeed.Record.
func (c Connection) RecordID() string { return c.ID }

// Other returns the participant that is not me.
func (c Connection) Other(me string) string {
	if c.User1ID == me {
		return c.User2ID
	}
	return c.User1ID
}

// Call is a video call row.
type Call struct {
	ID               string    `json:"id"`
	CallerID         string    `json:"caller_id"`
	ReceiverID       string    `json:"receiver_id"`
	Link             string    `json:"link"`
	Status           string    `json:"status"`
	CallerAccepted   bool      `json:"caller_accepted"`
	ReceiverAccepted bool      `json:"receiver_accepted"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RecordID implements livefeed.Record.
func (c Call) RecordID() string { return c.ID }

// Verification records a passed skill test.
type Verification struct {
	Level       string    `json:"level"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

// Profile is a user's skill-exchange profile.
type Profile struct {
	ID             string                  `json:"id"`
	FullName       string                  `json:"full_name"`
	AvatarURL      string                  `json:"avatar_url"`
	Bio            string                  `json:"bio"`
	SkillsTeach    []string                `json:"skills_teach"`
	SkillsLearn    []string                `json:"skills_learn"`
	Location       string                  `json:"location"`
	Language       string                  `json:"language"`
	VerifiedSkills map[string]Verification `json:"verified_skills"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// Outbox entry statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry is a pending outgoing message. ClientMsgID is the durable
// message identifier: it is generated client-side and persisted as the
// row's primary key on the hosted store, so the optimistic copy and the
// change-feed copy always dedup to one record.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	SenderID     string
	ReceiverID   string
	Content      string
	Kind         string
	FileURL      string
	FileName     string
	Status       string
	ErrorMessage string
}
