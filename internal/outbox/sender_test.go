package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

type fakeSend struct {
	mu    sync.Mutex
	sent  []store.OutboxEntry
	fail  map[string]error
	calls int
}

func (f *fakeSend) fn(ctx context.Context, e store.OutboxEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[e.ClientMsgID]; err != nil {
		return err
	}
	f.sent = append(f.sent, e)
	return nil
}

func (f *fakeSend) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.sent))
	for i, e := range f.sent {
		ids[i] = e.ClientMsgID
	}
	return ids
}

func testSender(t *testing.T, send SendFunc) (*Sender, *store.DB, *bus.Bus) {
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
	return NewSender(db, b, send, zap.NewNop()), db, b
}

func TestEnqueueAssignsClientID(t *testing.T) {
	s, db, _ := testSender(t, (&fakeSend{}).fn)

	e, err := s.Enqueue(store.OutboxEntry{SenderID: "alice", ReceiverID: "bob", Content: "hi", Kind: store.KindText})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if e.ClientMsgID == "" {
		t.Fatal("no client message id assigned")
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatalf("PendingOutbox: %v", err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != e.ClientMsgID {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestDrainSendsOldestFirst(t *testing.T) {
	fs := &fakeSend{}
	s, db, _ := testSender(t, fs.fn)

	first, _ := s.Enqueue(store.OutboxEntry{SenderID: "a", ReceiverID: "b", Content: "1", Kind: store.KindText})
	second, _ := s.Enqueue(store.OutboxEntry{SenderID: "a", ReceiverID: "b", Content: "2", Kind: store.KindText})

	s.Drain(context.Background())

	ids := fs.sentIDs()
	if len(ids) != 2 || ids[0] != first.ClientMsgID || ids[1] != second.ClientMsgID {
		t.Fatalf("sent order = %v", ids)
	}
	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Fatalf("pending after drain = %+v", pending)
	}
}

func TestDrainParksFailuresAndContinues(t *testing.T) {
	fs := &fakeSend{fail: map[string]error{}}
	s, db, b := testSender(t, fs.fn)

	ch, unsub := b.Subscribe(bus.TopicMessage, 16)
	defer unsub()

	bad, _ := s.Enqueue(store.OutboxEntry{SenderID: "a", ReceiverID: "b", Content: "bad", Kind: store.KindText})
	good, _ := s.Enqueue(store.OutboxEntry{SenderID: "a", ReceiverID: "b", Content: "good", Kind: store.KindText})
	fs.mu.Lock()
	fs.fail[bad.ClientMsgID] = errors.New("backend down")
	fs.mu.Unlock()

	s.Drain(context.Background())

	if ids := fs.sentIDs(); len(ids) != 1 || ids[0] != good.ClientMsgID {
		t.Fatalf("sent = %v", ids)
	}
	if pending, _ := db.PendingOutbox(); len(pending) != 0 {
		t.Fatal("failed entry still pending; it should be parked")
	}

	var kinds []string
	deadline := time.After(time.Second)
	for len(kinds) < 4 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
		case <-deadline:
			t.Fatalf("events = %v", kinds)
		}
	}
	var failed, sent int
	for _, k := range kinds {
		switch k {
		case EventSendFailed:
			failed++
		case EventSent:
			sent++
		}
	}
	if failed != 1 || sent != 1 {
		t.Fatalf("failed=%d sent=%d from %v", failed, sent, kinds)
	}
}

func TestStartDrainsPeriodically(t *testing.T) {
	fs := &fakeSend{}
	s, _, _ := testSender(t, fs.fn)
	s.interval = 20 * time.Millisecond
	s.Start(context.Background())
	defer s.Stop()

	e, _ := s.Enqueue(store.OutboxEntry{SenderID: "a", ReceiverID: "b", Content: "tick", Kind: store.KindText})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ids := fs.sentIDs(); len(ids) == 1 && ids[0] == e.ClientMsgID {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("queued entry never drained")
}
