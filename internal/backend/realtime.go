package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pveiga/skillswap/internal/bus"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 25 * time.Second
	reconnectBase     = time.Second
	reconnectMax      = 30 * time.Second
)

// frame is the websocket envelope the change-feed service speaks.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

type changePayload struct {
	Data struct {
		Type   EventType       `json:"type"`
		Table  string          `json:"table"`
		Record json.RawMessage `json:"record"`
	} `json:"data"`
}

type joinSpec struct {
	table  string
	event  EventType
	filter string
}

// Feed maintains the websocket connection to the server-pushed change
// feed. Every row-level change it receives is republished on the bus as an
// "rt.<table>" event carrying a *ChangeEvent, so consumers attach and
// detach without touching the connection. Reconnects rejoin all topics.
type Feed struct {
	wsURL  string
	apiKey string
	auth   *Auth
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	joins  []joinSpec
	refSeq int
	cancel context.CancelFunc
	done   chan struct{}

	// writeMu serializes frame writes; the websocket package allows at
	// most one writer on a connection.
	writeMu sync.Mutex
}

// NewFeed creates a change feed for the given project URL.
func NewFeed(baseURL, apiKey string, auth *Auth, b *bus.Bus, logger *zap.Logger) *Feed {
	ws := strings.Replace(strings.TrimRight(baseURL, "/"), "http", "ws", 1)
	return &Feed{
		wsURL:  ws + "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0",
		apiKey: apiKey,
		auth:   auth,
		bus:    b,
		logger: logger,
	}
}

// Join subscribes to row changes on table matching the server-evaluated
// filter expression. Safe before Start; the subscription is (re)sent on
// every (re)connect.
func (f *Feed) Join(table string, event EventType, filter string) error {
	f.mu.Lock()
	f.joins = append(f.joins, joinSpec{table: table, event: event, filter: filter})
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		return nil
	}
	return f.sendJoin(conn, joinSpec{table: table, event: event, filter: filter})
}

// Start dials the feed and keeps it alive until Stop or ctx cancellation.
// Starting an already-running feed is a no-op, so lifecycle hooks and a
// later sign-in may both call it without stacking connections.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	go func() {
		defer close(done)
		f.run(ctx)
	}()
}

// Stop tears the connection down and waits for the run loop to exit. No
// events are published after it returns. The feed may be started again.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	conn := f.conn
	done := f.done
	f.cancel = nil
	f.done = nil
	f.conn = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (f *Feed) run(ctx context.Context) {
	delay := reconnectBase
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.connectAndServe(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("change feed disconnected", zap.Error(err), zap.Duration("retry_in", delay))
			f.bus.Publish(bus.Event{Kind: "session.feed_down", Timestamp: time.Now()})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay = min(delay*2, reconnectMax)
			continue
		}
		return
	}
}

func (f *Feed) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial change feed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	joins := append([]joinSpec(nil), f.joins...)
	f.mu.Unlock()

	for _, j := range joins {
		if err := f.sendJoin(conn, j); err != nil {
			_ = conn.Close()
			return fmt.Errorf("join %s: %w", j.table, err)
		}
	}
	f.logger.Info("change feed connected", zap.Int("topics", len(joins)))
	f.bus.Publish(bus.Event{Kind: "session.feed_up", Timestamp: time.Now()})

	hbCtx, stopHB := context.WithCancel(ctx)
	defer stopHB()
	go f.heartbeat(hbCtx, conn)
	// Unblock the read loop if Stop races the dial and never saw this
	// connection.
	go func() {
		<-hbCtx.Done()
		_ = conn.Close()
	}()

	for {
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			f.mu.Lock()
			if f.conn == conn {
				f.conn = nil
			}
			f.mu.Unlock()
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		f.dispatch(&fr)
	}
}

func (f *Feed) dispatch(fr *frame) {
	if fr.Event != "postgres_changes" {
		return
	}
	var p changePayload
	if err := json.Unmarshal(fr.Payload, &p); err != nil {
		f.logger.Warn("undecodable change event", zap.Error(err), zap.String("topic", fr.Topic))
		return
	}
	f.bus.Publish(bus.Event{
		Kind:      bus.TopicRealtime + p.Data.Table,
		Timestamp: time.Now(),
		Payload: &ChangeEvent{
			Table: p.Data.Table,
			Type:  p.Data.Type,
			Row:   p.Data.Record,
		},
	})
}

func (f *Feed) sendJoin(conn *websocket.Conn, j joinSpec) error {
	f.mu.Lock()
	f.refSeq++
	ref := fmt.Sprintf("%d", f.refSeq)
	f.mu.Unlock()

	payload := map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{{
				"event":  string(j.event),
				"schema": "public",
				"table":  j.table,
				"filter": j.filter,
			}},
		},
		"access_token": f.auth.AccessToken(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return f.writeFrame(conn, frame{
		Topic:   "realtime:public:" + j.table,
		Event:   "phx_join",
		Payload: raw,
		Ref:     ref,
	})
}

func (f *Feed) writeFrame(conn *websocket.Conn, fr frame) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(fr)
}

func (f *Feed) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := f.writeFrame(conn, frame{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`)})
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
