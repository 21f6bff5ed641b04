package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/calls"
	"github.com/pveiga/skillswap/internal/connections"
	"github.com/pveiga/skillswap/internal/messaging"
	"github.com/pveiga/skillswap/internal/outbox"
	"github.com/pveiga/skillswap/internal/profiles"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

// Deps are the long-lived services the view model drives. They come out
// of the fx graph; the view model owns only per-session and per-view
// state built on top of them.
type Deps struct {
	Bus      *bus.Bus
	Auth     *backend.Auth
	Client   *backend.Client
	RT       *backend.Feed
	DB       *store.DB
	Calls    *calls.Service
	Profiles *profiles.Service
	Sender   *outbox.Sender
	Logger   *zap.Logger
}

// ViewModel holds the UI-facing state: the recent chats, the open
// conversation and the signed-in identity. All mutating methods are safe
// to call from UI goroutines.
type ViewModel struct {
	mu sync.RWMutex

	deps    Deps
	recents *connections.Recents
	monitor *calls.Monitor
	thread  *messaging.Thread
	notify  func()

	Flash Flash
}

// NewViewModel creates a view model over the service graph.
func NewViewModel(deps Deps) *ViewModel {
	return &ViewModel{deps: deps}
}

// SetNotify registers the redraw callback propagated to every live feed
// the view model opens.
func (vm *ViewModel) SetNotify(fn func()) {
	vm.mu.Lock()
	vm.notify = fn
	vm.mu.Unlock()
}

// SignedIn reports whether a persisted session exists.
func (vm *ViewModel) SignedIn() bool { return vm.deps.Auth.SignedIn() }

// UserID returns the signed-in user id, empty when signed out.
func (vm *ViewModel) UserID() string { return vm.deps.Auth.UserID() }

// Email returns the signed-in email, empty when signed out.
func (vm *ViewModel) Email() string { return vm.deps.Auth.Email() }

// SignIn authenticates and brings the session online: the change feed
// dials, the recent chats load and the call monitor starts ringing.
func (vm *ViewModel) SignIn(ctx context.Context, email, password string) error {
	if err := vm.deps.Auth.SignIn(ctx, email, password); err != nil {
		return err
	}
	return vm.GoOnline(ctx)
}

// GoOnline starts the session-scoped feeds for an already authenticated
// user. Called once at startup when credentials were restored from disk.
func (vm *ViewModel) GoOnline(ctx context.Context) error {
	me := vm.deps.Auth.UserID()
	if me == "" {
		return errors.New("not signed in")
	}

	recents, err := connections.NewRecents(vm.deps.Bus, vm.deps.Client, vm.deps.RT, me, vm.deps.Logger)
	if err != nil {
		return err
	}
	recents.SetNotify(vm.redraw)

	monitor, err := calls.NewMonitor(vm.deps.Bus, vm.deps.Calls, vm.deps.RT, me, vm.deps.Logger)
	if err != nil {
		recents.Close()
		return err
	}

	vm.mu.Lock()
	vm.recents = recents
	vm.monitor = monitor
	vm.mu.Unlock()

	vm.deps.RT.Start(ctx)
	monitor.Start(ctx)
	// A failed initial fetch is not fatal: the listener is attached and
	// live rows still land, so surface it and carry on.
	if err := recents.Start(ctx); err != nil {
		vm.deps.Logger.Warn("recent chats fetch failed", zap.Error(err))
		vm.Flash.Set("Could not load recent chats")
	}
	return nil
}

// SignOut tears down the session feeds and drops the stored token.
func (vm *ViewModel) SignOut() error {
	vm.CloseChat()

	vm.mu.Lock()
	recents, monitor := vm.recents, vm.monitor
	vm.recents, vm.monitor = nil, nil
	vm.mu.Unlock()

	if recents != nil {
		recents.Close()
	}
	if monitor != nil {
		monitor.Stop()
	}
	vm.deps.RT.Stop()
	return vm.deps.Auth.SignOut()
}

// Recents returns the current recent-chats list.
func (vm *ViewModel) Recents() []store.Connection {
	vm.mu.RLock()
	r := vm.recents
	vm.mu.RUnlock()
	if r == nil {
		return nil
	}
	return r.List()
}

// OpenChat switches the active conversation to the given partner,
// creating the connection row on first contact.
func (vm *ViewModel) OpenChat(ctx context.Context, other string) error {
	me := vm.deps.Auth.UserID()
	if me == "" {
		return errors.New("not signed in")
	}

	vm.CloseChat()

	if _, err := connections.Ensure(ctx, vm.deps.Client, me, other, ""); err != nil {
		vm.deps.Logger.Warn("connection ensure failed", zap.String("other", other), zap.Error(err))
	}

	thread, err := messaging.NewThread(vm.deps.Bus, vm.deps.Client, vm.deps.RT, me, other, vm.deps.Logger)
	if err != nil {
		return err
	}
	thread.SetNotify(vm.redraw)

	vm.mu.Lock()
	vm.thread = thread
	vm.mu.Unlock()

	return thread.Start(ctx)
}

// CloseChat tears down the active conversation, if any.
func (vm *ViewModel) CloseChat() {
	vm.mu.Lock()
	thread := vm.thread
	vm.thread = nil
	vm.mu.Unlock()
	if thread != nil {
		thread.Close()
	}
}

// ActiveChat returns the partner id of the open conversation, empty when
// no chat is open.
func (vm *ViewModel) ActiveChat() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.thread == nil {
		return ""
	}
	return vm.thread.Other()
}

// Messages returns the open conversation's messages in order.
func (vm *ViewModel) Messages() []store.Message {
	vm.mu.RLock()
	thread := vm.thread
	vm.mu.RUnlock()
	if thread == nil {
		return nil
	}
	return thread.Messages()
}

// SendText sends a text message in the open conversation. When the
// backend is unreachable the message parks in the outbox and goes out on
// the next drain.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	vm.mu.RLock()
	thread := vm.thread
	vm.mu.RUnlock()
	if thread == nil {
		return errors.New("no open conversation")
	}

	sent, err := thread.Send(ctx, text, store.KindText, "", "")
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			return err // rejected upstream, queueing would re-fail
		}
		if errors.Is(err, messaging.ErrEmptyContent) || errors.Is(err, messaging.ErrInvalidParticipants) {
			return err
		}
		if _, qErr := vm.deps.Sender.Enqueue(store.OutboxEntry{
			SenderID:   vm.deps.Auth.UserID(),
			ReceiverID: thread.Other(),
			Content:    text,
			Kind:       store.KindText,
		}); qErr != nil {
			return fmt.Errorf("queue after send failure: %w", qErr)
		}
		vm.Flash.Set("Offline, message queued")
		return nil
	}

	if err := connections.TouchPreview(ctx, vm.deps.Client, sent.SenderID, sent.ReceiverID, sent.Content); err != nil {
		vm.deps.Logger.Warn("preview update failed", zap.Error(err))
	}
	return nil
}

// StartCall rings the open conversation's partner.
func (vm *ViewModel) StartCall(ctx context.Context) (store.Call, error) {
	vm.mu.RLock()
	thread, monitor := vm.thread, vm.monitor
	vm.mu.RUnlock()
	if thread == nil {
		return store.Call{}, errors.New("no open conversation")
	}

	call, err := vm.deps.Calls.Initiate(ctx, vm.deps.Auth.UserID(), thread.Other())
	if err != nil {
		return store.Call{}, err
	}
	if monitor != nil {
		monitor.Track(call)
	}
	return call, nil
}

// AcceptCall answers an incoming call.
func (vm *ViewModel) AcceptCall(ctx context.Context, call store.Call) error {
	return vm.deps.Calls.Accept(ctx, call)
}

// RejectCall declines an incoming call.
func (vm *ViewModel) RejectCall(ctx context.Context, call store.Call) error {
	return vm.deps.Calls.Reject(ctx, call)
}

// Profile fetches a user's profile, served from cache when offline.
func (vm *ViewModel) Profile(ctx context.Context, userID string) (store.Profile, error) {
	return vm.deps.Profiles.Get(ctx, userID)
}

func (vm *ViewModel) redraw() {
	vm.mu.RLock()
	fn := vm.notify
	vm.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
