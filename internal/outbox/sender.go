// Package outbox drains queued messages to the backend. Messages written
// while offline wait in the cache and go out on the next drain tick.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

// Bus events for outbox progress. Payload is the store.OutboxEntry.
const (
	EventQueued     = bus.TopicMessage + "queued"
	EventSent       = bus.TopicMessage + "sent"
	EventSendFailed = bus.TopicMessage + "send_failed"
)

const drainInterval = 500 * time.Millisecond

// SendFunc performs the actual delivery of one entry.
type SendFunc func(ctx context.Context, e store.OutboxEntry) error

// BackendSend delivers an entry as a message insert. The client message
// id becomes the row's primary key, so a retry of a write that actually
// landed conflicts instead of duplicating.
func BackendSend(client *backend.Client) SendFunc {
	return func(ctx context.Context, e store.OutboxEntry) error {
		now := time.Now().UTC()
		row := store.Message{
			ID:         e.ClientMsgID,
			SenderID:   e.SenderID,
			ReceiverID: e.ReceiverID,
			Content:    e.Content,
			Kind:       e.Kind,
			FileURL:    e.FileURL,
			FileName:   e.FileName,
			Timestamp:  now,
			CreatedAt:  now,
		}
		return client.Insert(ctx, backend.TableMessages, row, nil)
	}
}

// Sender owns the drain loop.
type Sender struct {
	db       *store.DB
	bus      *bus.Bus
	send     SendFunc
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSender(db *store.DB, b *bus.Bus, send SendFunc, logger *zap.Logger) *Sender {
	return &Sender{db: db, bus: b, send: send, interval: drainInterval, logger: logger}
}

// Enqueue stores the message for delivery and returns the entry with its
// client message id assigned.
func (s *Sender) Enqueue(e store.OutboxEntry) (store.OutboxEntry, error) {
	if e.ClientMsgID == "" {
		e.ClientMsgID = uuid.New().String()
	}
	e.Status = store.OutboxQueued
	if err := s.db.QueueOutbox(&e); err != nil {
		return store.OutboxEntry{}, fmt.Errorf("queue message: %w", err)
	}
	s.bus.Publish(bus.Event{Kind: EventQueued, Timestamp: time.Now(), Payload: e})
	return e, nil
}

// Start runs the drain loop until ctx is cancelled or Stop is called.
func (s *Sender) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Drain(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight drain.
func (s *Sender) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Drain sends every queued entry once, oldest first. A failed entry is
// parked as failed and does not block the rest of the queue.
func (s *Sender) Drain(ctx context.Context) {
	entries, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("outbox read failed", zap.Error(err))
		return
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		s.deliver(ctx, e)
	}
}

func (s *Sender) deliver(ctx context.Context, e store.OutboxEntry) {
	if err := s.db.MarkOutboxSending(e.ClientMsgID); err != nil {
		s.logger.Error("outbox state write failed", zap.Error(err))
		return
	}

	if err := s.send(ctx, e); err != nil {
		s.logger.Warn("send failed",
			zap.String("client_msg_id", e.ClientMsgID),
			zap.String("receiver", e.ReceiverID),
			zap.Error(err))
		e.Status = store.OutboxFailed
		e.ErrorMessage = err.Error()
		if dbErr := s.db.MarkOutboxFailed(e.ClientMsgID, err.Error()); dbErr != nil {
			s.logger.Error("outbox state write failed", zap.Error(dbErr))
		}
		s.bus.Publish(bus.Event{Kind: EventSendFailed, Timestamp: time.Now(), Payload: e})
		return
	}

	e.Status = store.OutboxSent
	if err := s.db.MarkOutboxSent(e.ClientMsgID); err != nil {
		s.logger.Error("outbox state write failed", zap.Error(err))
	}
	s.bus.Publish(bus.Event{Kind: EventSent, Timestamp: time.Now(), Payload: e})
}
