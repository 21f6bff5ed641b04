package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + calls/profiles)", result.Version)
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)
	ts := time.UnixMilli(1000)

	m := &Message{ID: "m1", SenderID: "a", ReceiverID: "b", Content: "v1", Kind: KindText, Timestamp: ts, CreatedAt: ts}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	m.Content = "v2"
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListConversation("a", "b", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent)", len(msgs))
	}
	if msgs[0].Content != "v2" {
		t.Errorf("content = %q, want v2 (updated)", msgs[0].Content)
	}
}

func TestListConversationSymmetricAndOrdered(t *testing.T) {
	db := testDB(t)

	rows := []Message{
		{ID: "m2", SenderID: "b", ReceiverID: "a", Content: "two", Kind: KindText, Timestamp: time.UnixMilli(2000)},
		{ID: "m1", SenderID: "a", ReceiverID: "b", Content: "one", Kind: KindText, Timestamp: time.UnixMilli(1000)},
		{ID: "mx", SenderID: "a", ReceiverID: "c", Content: "other pair", Kind: KindText, Timestamp: time.UnixMilli(1500)},
	}
	for i := range rows {
		rows[i].CreatedAt = rows[i].Timestamp
		if err := db.UpsertMessage(&rows[i]); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListConversation("a", "b", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (both directions, no other pairs)", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("order = [%s %s], want [m1 m2]", msgs[0].ID, msgs[1].ID)
	}
}

func TestConnectionPairUnique(t *testing.T) {
	db := testDB(t)

	c := &Connection{ID: "c1", User1ID: "a", User2ID: "b", LastMessage: "hi", UpdatedAt: time.UnixMilli(1000)}
	if err := db.UpsertConnection(c); err != nil {
		t.Fatal(err)
	}
	// Same normalized pair under a different id must collapse into one row.
	c2 := &Connection{ID: "c2", User1ID: "a", User2ID: "b", LastMessage: "yo", UpdatedAt: time.UnixMilli(2000)}
	if err := db.UpsertConnection(c2); err != nil {
		t.Fatal(err)
	}

	conns, err := db.ListConnections("a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 {
		t.Fatalf("got %d connections, want 1", len(conns))
	}
	if conns[0].LastMessage != "yo" {
		t.Errorf("last_message = %q, want yo", conns[0].LastMessage)
	}
}

func TestCallUpsertAndGet(t *testing.T) {
	db := testDB(t)
	now := time.UnixMilli(5000)

	c := &Call{ID: "call1", CallerID: "a", ReceiverID: "b", Link: "https://meet/x", Status: CallPending, CallerAccepted: true, CreatedAt: now, UpdatedAt: now}
	if err := db.UpsertCall(c); err != nil {
		t.Fatal(err)
	}

	c.Status = CallAccepted
	c.ReceiverAccepted = true
	if err := db.UpsertCall(c); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCall("call1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Status != CallAccepted || !got.ReceiverAccepted {
		t.Errorf("call = %+v", got)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	db := testDB(t)

	p := &Profile{
		ID:          "u1",
		FullName:    "Ada",
		Bio:         "teaches things",
		SkillsTeach: []string{"Go", "SQL"},
		SkillsLearn: []string{"Guitar"},
		Location:    "Lisbon",
		Language:    "pt",
		VerifiedSkills: map[string]Verification{
			"Go": {Level: "Expert", Score: 95, CompletedAt: time.UnixMilli(1000).UTC()},
		},
		UpdatedAt: time.UnixMilli(2000),
	}
	if err := db.UpsertProfile(p); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetProfile("u1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("profile not found")
	}
	if len(got.SkillsTeach) != 2 || got.SkillsTeach[0] != "Go" {
		t.Errorf("skills_teach = %v", got.SkillsTeach)
	}
	v, ok := got.VerifiedSkills["Go"]
	if !ok || v.Level != "Expert" || v.Score != 95 {
		t.Errorf("verified_skills = %v", got.VerifiedSkills)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	e := &OutboxEntry{ClientMsgID: "cm1", SenderID: "a", ReceiverID: "b", Content: "hi", Kind: KindText}
	if err := db.QueueOutbox(e); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != "cm1" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := db.MarkOutboxSending("cm1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("cm1"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after sent, want 0", len(pending))
	}
}
