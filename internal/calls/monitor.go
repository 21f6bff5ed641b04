package calls

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

// Bus events the monitor publishes. Payload is always a store.Call.
const (
	EventIncoming = bus.TopicCall + "incoming"
	EventAccepted = bus.TopicCall + "accepted"
	EventRejected = bus.TopicCall + "rejected"
	EventTimeout  = bus.TopicCall + "timeout"
	EventUpdated  = bus.TopicCall + "updated"
)

// ringTimeout is how long a pending call rings before the monitor gives
// up on it locally and writes the rejection.
const ringTimeout = 30 * time.Second

type trackedCall struct {
	call     store.Call
	timer    *time.Timer
	resolved bool
}

// Monitor watches the call change feed for the current user and turns row
// changes into UI-facing events. Each call resolves locally exactly once:
// the first of accepted, rejected or the ring timeout wins, and later
// status events for that call are dropped.
type Monitor struct {
	me      string
	svc     *Service
	bus     *bus.Bus
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	tracked map[string]*trackedCall
	unsub   func()
	done    chan struct{}
}

// NewMonitor creates the monitor and registers its change-feed
// subscription for calls involving user me.
func NewMonitor(b *bus.Bus, svc *Service, rt *backend.Feed, me string, logger *zap.Logger) (*Monitor, error) {
	filter := backend.FilterExpr(backend.Or(backend.Eq("caller_id", me), backend.Eq("receiver_id", me)))
	if err := rt.Join(backend.TableCalls, backend.EventAll, filter); err != nil {
		return nil, fmt.Errorf("join call feed: %w", err)
	}
	return &Monitor{
		me:      me,
		svc:     svc,
		bus:     b,
		logger:  logger,
		timeout: ringTimeout,
		tracked: make(map[string]*trackedCall),
	}, nil
}

// Start attaches the bus listener.
func (m *Monitor) Start(ctx context.Context) {
	ch, unsub := m.bus.Subscribe(bus.TopicRealtime+backend.TableCalls, 16)
	m.mu.Lock()
	m.unsub = unsub
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				m.handle(evt)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop detaches the listener and disarms every ring timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	for _, tc := range m.tracked {
		if tc.timer != nil {
			tc.timer.Stop()
		}
		tc.resolved = true
	}
}

// Track registers an outgoing call the user just initiated, arming the
// same ring timeout the receiving side uses.
func (m *Monitor) Track(call store.Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(call)
}

func (m *Monitor) handle(evt bus.Event) {
	ce, ok := evt.Payload.(*backend.ChangeEvent)
	if !ok || ce.Table != backend.TableCalls {
		return
	}
	var call store.Call
	if err := ce.Decode(&call); err != nil {
		m.logger.Warn("undecodable call event", zap.Error(err))
		return
	}
	if call.CallerID != m.me && call.ReceiverID != m.me {
		return
	}

	switch ce.Type {
	case backend.EventInsert:
		m.onInsert(call)
	case backend.EventUpdate:
		m.onUpdate(call)
	}
}

func (m *Monitor) onInsert(call store.Call) {
	if call.Status != store.CallPending {
		return
	}
	m.mu.Lock()
	if _, seen := m.tracked[call.ID]; seen {
		m.mu.Unlock()
		return
	}
	m.track(call)
	m.mu.Unlock()

	if call.ReceiverID == m.me {
		m.publish(EventIncoming, call)
	}
}

// track must run with mu held.
func (m *Monitor) track(call store.Call) {
	if _, seen := m.tracked[call.ID]; seen {
		return
	}
	tc := &trackedCall{call: call}
	tc.timer = time.AfterFunc(m.timeout, func() { m.onTimeout(call.ID) })
	m.tracked[call.ID] = tc
}

func (m *Monitor) onUpdate(call store.Call) {
	m.publish(EventUpdated, call)

	m.mu.Lock()
	tc := m.tracked[call.ID]
	if tc == nil {
		// An update for a call that predates this monitor. Track it so a
		// later terminal status still resolves once.
		tc = &trackedCall{call: call}
		m.tracked[call.ID] = tc
	}
	tc.call = call

	if tc.resolved || (call.Status != store.CallAccepted && call.Status != store.CallRejected) {
		m.mu.Unlock()
		return
	}
	tc.resolved = true
	if tc.timer != nil {
		tc.timer.Stop()
	}
	m.mu.Unlock()

	switch call.Status {
	case store.CallAccepted:
		m.publish(EventAccepted, call)
	case store.CallRejected:
		m.publish(EventRejected, call)
	}
}

func (m *Monitor) onTimeout(id string) {
	m.mu.Lock()
	tc := m.tracked[id]
	if tc == nil || tc.resolved {
		m.mu.Unlock()
		return
	}
	tc.resolved = true
	call := tc.call
	m.mu.Unlock()

	m.logger.Info("call rang out", zap.String("call_id", id))
	m.publish(EventTimeout, call)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.svc.Reject(ctx, call); err != nil {
		m.logger.Warn("timeout rejection failed", zap.String("call_id", id), zap.Error(err))
	}
}

func (m *Monitor) publish(kind string, call store.Call) {
	m.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: call})
}
