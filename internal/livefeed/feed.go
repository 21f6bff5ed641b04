package livefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pveiga/skillswap/internal/bus"
	"go.uber.org/zap"
)

// ErrFetchFailed wraps the initial bulk-read failure. The collection is
// left empty and the error is surfaced through Err.
var ErrFetchFailed = errors.New("fetch failed")

// FetchFunc performs the initial bulk read for one parameter set, ordered
// by creation time ascending.
type FetchFunc[T Record] func(ctx context.Context) ([]T, error)

// Options configures one feed instance.
type Options struct {
	// Topic is the bus prefix the change listener attaches to.
	Topic string
	// Buffer is the listener channel depth. Defaults to 64.
	Buffer int
	// RetryAttempts is how many times a failed fetch is retried before
	// giving up. Zero means a single attempt with no retry.
	RetryAttempts int
	// RetryBase scales the backoff: the n-th retry waits RetryBase * n.
	RetryBase time.Duration
	// UpdateInPlace makes update events overwrite the stored record's
	// fields instead of being dropped as duplicates.
	UpdateInPlace bool
}

// Feed ties a Collection to its fetcher and change listener. A feed is
// bound to one set of identifying parameters for its whole life: when the
// parameters change (a different chat partner, a different owner), the
// owner closes this feed and starts a new one. Nothing about the data the
// feed produces ever re-keys its subscription.
type Feed[T Record] struct {
	records *Collection[T]
	fetch   FetchFunc[T]
	bus     *bus.Bus
	decode  func(bus.Event) (T, bool)
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	unsub   func()
	done    chan struct{}
	closed  bool
	loading bool
	lastErr error
	notify  func()
}

// New creates a feed. decode translates a bus event into a record; it
// returns false to skip events that do not belong to this feed's
// parameters (the client-side half of the symmetric filter).
func New[T Record](b *bus.Bus, fetch FetchFunc[T], decode func(bus.Event) (T, bool), opts Options, logger *zap.Logger) *Feed[T] {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed[T]{
		records: NewCollection[T](),
		fetch:   fetch,
		bus:     b,
		decode:  decode,
		opts:    opts,
		logger:  logger,
	}
}

// SetNotify registers a callback invoked after every collection mutation.
// The UI uses it to schedule a redraw.
func (f *Feed[T]) SetNotify(fn func()) {
	f.mu.Lock()
	f.notify = fn
	f.mu.Unlock()
}

// Start runs the initial fetch and then attaches the change listener.
// On fetch failure the collection stays empty, Err reports the cause and
// the listener is still attached so live rows keep arriving.
func (f *Feed[T]) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("feed closed")
	}
	f.loading = true
	f.mu.Unlock()

	rows, err := f.fetchWithRetry(ctx)

	f.mu.Lock()
	f.loading = false
	if err != nil {
		f.lastErr = fmt.Errorf("%w: %v", ErrFetchFailed, err)
	} else {
		f.lastErr = nil
		f.records.Replace(rows)
	}
	if f.closed {
		f.mu.Unlock()
		return f.lastErr
	}
	ch, unsub := f.bus.Subscribe(f.opts.Topic, f.opts.Buffer)
	f.unsub = unsub
	f.done = make(chan struct{})
	done := f.done
	f.mu.Unlock()

	go f.listen(ch, done)

	f.signal()
	return f.lastErr
}

// Refresh re-runs the bulk fetch and replaces the collection, keeping the
// existing subscription attached.
func (f *Feed[T]) Refresh(ctx context.Context) error {
	rows, err := f.fetchWithRetry(ctx)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		f.lastErr = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		f.mu.Unlock()
		return f.lastErr
	}
	f.lastErr = nil
	f.records.Replace(rows)
	f.mu.Unlock()
	f.signal()
	return nil
}

func (f *Feed[T]) fetchWithRetry(ctx context.Context) ([]T, error) {
	var lastErr error
	for attempt := 0; attempt <= f.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := f.opts.RetryBase * time.Duration(attempt)
			f.logger.Warn("fetch retry",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		rows, err := f.fetch(ctx)
		if err == nil {
			return rows, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Feed[T]) listen(ch <-chan bus.Event, done chan struct{}) {
	for {
		select {
		case evt := <-ch:
			f.handle(evt)
		case <-done:
			return
		}
	}
}

func (f *Feed[T]) handle(evt bus.Event) {
	// Closed is checked under the same lock Close takes, so no mutation
	// can slip in after Close returns.
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	rec, ok := f.decode(evt)
	if !ok {
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	merged := f.records.Merge(rec)
	if !merged && f.opts.UpdateInPlace {
		f.records.Update(rec.RecordID(), func(stored *T) { *stored = rec })
		merged = true
	}
	f.mu.Unlock()

	if merged {
		f.signal()
	}
}

// Merge inserts a record directly, bypassing the listener. The send path
// uses it for the optimistic local copy.
func (f *Feed[T]) Merge(rec T) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	merged := f.records.Merge(rec)
	f.mu.Unlock()
	if merged {
		f.signal()
	}
	return merged
}

// Snapshot returns the current ordered records.
func (f *Feed[T]) Snapshot() []T { return f.records.Snapshot() }

// Records exposes the underlying collection.
func (f *Feed[T]) Records() *Collection[T] { return f.records }

// Loading reports whether the initial fetch is still in flight.
func (f *Feed[T]) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Err returns the last fetch error, nil when healthy.
func (f *Feed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Close detaches the change listener. After Close returns, no further
// collection mutations occur even if the feed still has buffered events.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unsub := f.unsub
	done := f.done
	f.unsub = nil
	f.done = nil
	f.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if done != nil {
		close(done)
	}
}

func (f *Feed[T]) signal() {
	f.mu.Lock()
	fn := f.notify
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}
