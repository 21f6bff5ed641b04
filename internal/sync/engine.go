// Package sync ingests change-feed rows into the local cache so the
// client renders instantly on the next start and survives offline reads.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/connections"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

// Domain events the engine republishes once a row is durably cached.
const (
	EventMessageUpserted    = bus.TopicMessage + "upserted"
	EventConnectionUpserted = bus.TopicConnection + "upserted"
	EventCallUpserted       = bus.TopicCall + "upserted"
)

// Engine subscribes to the raw change feed and writes every row it can
// decode into the cache. Writes are idempotent upserts keyed on the row
// id, so replays after a reconnect are harmless.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger

	mu    sync.Mutex
	unsub func()
	done  chan struct{}
	wg    sync.WaitGroup
}

func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{db: db, bus: b, logger: logger}
}

// Start attaches the engine to the feed topics.
func (e *Engine) Start(ctx context.Context) {
	ch, unsub := e.bus.Subscribe(bus.TopicRealtime, 128)
	e.mu.Lock()
	e.unsub = unsub
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				e.ingest(evt)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop detaches the engine and waits for the in-flight event.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) ingest(evt bus.Event) {
	ce, ok := evt.Payload.(*backend.ChangeEvent)
	if !ok {
		return
	}
	if ce.Type == backend.EventDelete {
		// Rows are never deleted upstream; a delete would be an admin
		// action and the cache keeps its copy for history.
		return
	}

	switch ce.Table {
	case backend.TableMessages:
		e.ingestMessage(ce)
	case backend.TableConnections:
		e.ingestConnection(ce)
	case backend.TableCalls:
		e.ingestCall(ce)
	case backend.TableProfiles:
		e.ingestProfile(ce)
	}
}

func (e *Engine) ingestMessage(ce *backend.ChangeEvent) {
	var m store.Message
	if err := ce.Decode(&m); err != nil {
		e.logger.Warn("undecodable message row", zap.Error(err))
		return
	}
	if err := e.db.UpsertMessage(&m); err != nil {
		e.logger.Error("message cache write failed", zap.String("id", m.ID), zap.Error(err))
		return
	}
	// Keep the sidebar preview in step with the newest message.
	u1, u2 := connections.NormalizePair(m.SenderID, m.ReceiverID)
	if err := e.db.TouchConnectionPreview(u1, u2, m.Content, m.Timestamp); err != nil {
		e.logger.Warn("preview update failed", zap.Error(err))
	}
	e.republish(EventMessageUpserted, m)
}

func (e *Engine) ingestConnection(ce *backend.ChangeEvent) {
	var c store.Connection
	if err := ce.Decode(&c); err != nil {
		e.logger.Warn("undecodable connection row", zap.Error(err))
		return
	}
	if err := e.db.UpsertConnection(&c); err != nil {
		e.logger.Error("connection cache write failed", zap.String("id", c.ID), zap.Error(err))
		return
	}
	e.republish(EventConnectionUpserted, c)
}

func (e *Engine) ingestCall(ce *backend.ChangeEvent) {
	var c store.Call
	if err := ce.Decode(&c); err != nil {
		e.logger.Warn("undecodable call row", zap.Error(err))
		return
	}
	if err := e.db.UpsertCall(&c); err != nil {
		e.logger.Error("call cache write failed", zap.String("id", c.ID), zap.Error(err))
		return
	}
	e.republish(EventCallUpserted, c)
}

func (e *Engine) ingestProfile(ce *backend.ChangeEvent) {
	var p store.Profile
	if err := ce.Decode(&p); err != nil {
		e.logger.Warn("undecodable profile row", zap.Error(err))
		return
	}
	if err := e.db.UpsertProfile(&p); err != nil {
		e.logger.Error("profile cache write failed", zap.String("id", p.ID), zap.Error(err))
	}
}

func (e *Engine) republish(kind string, payload any) {
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
