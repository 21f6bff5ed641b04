package sync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

func testEngine(t *testing.T) (*Engine, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	b := bus.New()
	e := NewEngine(db, b, zap.NewNop())
	e.Start(context.Background())
	t.Cleanup(e.Stop)
	return e, db, b
}

func publishRow(b *bus.Bus, table string, typ backend.EventType, row any) {
	raw, _ := json.Marshal(row)
	b.Publish(bus.Event{
		Kind:      bus.TopicRealtime + table,
		Timestamp: time.Now(),
		Payload:   &backend.ChangeEvent{Table: table, Type: typ, Row: raw},
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestEngineIngestsMessagesIdempotently(t *testing.T) {
	_, db, b := testEngine(t)

	msg := store.Message{
		ID: "m1", SenderID: "alice", ReceiverID: "bob",
		Content: "hi", Kind: store.KindText,
		Timestamp: time.Now().UTC(), CreatedAt: time.Now().UTC(),
	}
	publishRow(b, backend.TableMessages, backend.EventInsert, msg)
	publishRow(b, backend.TableMessages, backend.EventInsert, msg) // replay

	waitFor(t, func() bool {
		rows, err := db.ListConversation("alice", "bob", 10)
		return err == nil && len(rows) == 1
	})
	rows, _ := db.ListConversation("alice", "bob", 10)
	if rows[0].Content != "hi" {
		t.Fatalf("cached message = %+v", rows[0])
	}
}

func TestEngineRepublishesDomainEvents(t *testing.T) {
	_, _, b := testEngine(t)

	ch, unsub := b.Subscribe(bus.TopicMessage, 8)
	defer unsub()

	publishRow(b, backend.TableMessages, backend.EventInsert, store.Message{
		ID: "m2", SenderID: "alice", ReceiverID: "bob",
		Content: "ping", Kind: store.KindText, Timestamp: time.Now().UTC(),
	})

	select {
	case evt := <-ch:
		if evt.Kind != EventMessageUpserted {
			t.Fatalf("kind = %s", evt.Kind)
		}
		if m := evt.Payload.(store.Message); m.ID != "m2" {
			t.Fatalf("payload = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no domain event republished")
	}
}

func TestEngineUpdatesConnectionPreview(t *testing.T) {
	_, db, b := testEngine(t)

	if err := db.UpsertConnection(&store.Connection{
		ID: "c1", User1ID: "alice", User2ID: "bob",
		LastMessage: "old", UpdatedAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed connection: %v", err)
	}

	// Sender order differs from the normalized pair order on purpose.
	publishRow(b, backend.TableMessages, backend.EventInsert, store.Message{
		ID: "m3", SenderID: "bob", ReceiverID: "alice",
		Content: "new preview", Kind: store.KindText, Timestamp: time.Now().UTC(),
	})

	waitFor(t, func() bool {
		c, err := db.GetConnectionByPair("alice", "bob")
		return err == nil && c != nil && c.LastMessage == "new preview"
	})
}

func TestEngineIngestsConnectionsAndCalls(t *testing.T) {
	_, db, b := testEngine(t)

	publishRow(b, backend.TableConnections, backend.EventInsert, store.Connection{
		ID: "c2", User1ID: "alice", User2ID: "carol", LastMessage: "yo", UpdatedAt: time.Now().UTC(),
	})
	publishRow(b, backend.TableCalls, backend.EventInsert, store.Call{
		ID: "call-1", CallerID: "alice", ReceiverID: "carol",
		Status: store.CallPending, Link: "https://meet.jit.si/z",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})

	waitFor(t, func() bool {
		c, _ := db.GetConnectionByPair("alice", "carol")
		call, _ := db.GetCall("call-1")
		return c != nil && call != nil
	})

	// Status update lands on the same row.
	publishRow(b, backend.TableCalls, backend.EventUpdate, store.Call{
		ID: "call-1", CallerID: "alice", ReceiverID: "carol",
		Status: store.CallAccepted, Link: "https://meet.jit.si/z",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	waitFor(t, func() bool {
		call, _ := db.GetCall("call-1")
		return call != nil && call.Status == store.CallAccepted
	})
}

func TestEngineIgnoresDeletesAndGarbage(t *testing.T) {
	_, db, b := testEngine(t)

	msg := store.Message{
		ID: "m4", SenderID: "alice", ReceiverID: "bob",
		Content: "keep me", Kind: store.KindText, Timestamp: time.Now().UTC(),
	}
	publishRow(b, backend.TableMessages, backend.EventInsert, msg)
	waitFor(t, func() bool {
		rows, _ := db.ListConversation("alice", "bob", 10)
		return len(rows) == 1
	})

	publishRow(b, backend.TableMessages, backend.EventDelete, msg)
	b.Publish(bus.Event{
		Kind:      bus.TopicRealtime + backend.TableMessages,
		Timestamp: time.Now(),
		Payload:   &backend.ChangeEvent{Table: backend.TableMessages, Type: backend.EventInsert, Row: json.RawMessage(`{"id":`)},
	})

	time.Sleep(100 * time.Millisecond)
	rows, _ := db.ListConversation("alice", "bob", 10)
	if len(rows) != 1 || rows[0].Content != "keep me" {
		t.Fatalf("cache changed: %+v", rows)
	}
}
