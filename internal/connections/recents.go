// Package connections maintains the recent-chats list and the lazy
// creation of the connection row shared by a pair of users.
package connections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/livefeed"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

// RecentLimit caps the recent-chats list.
const RecentLimit = 3

// Recent-chats fetch retry policy. The sidebar fetch runs right after
// sign-in, when the session token may not have propagated yet, so it
// retries with a growing delay before reporting failure.
const (
	fetchRetries   = 3
	fetchRetryBase = 500 * time.Millisecond
)

var ErrSamePair = errors.New("cannot connect a user to themselves")

// NormalizePair orders two user ids so that every unordered pair maps to
// exactly one (user1, user2) tuple. Connection rows are stored normalized
// and looked up normalized, which is what makes the pair unique.
func NormalizePair(a, b string) (user1, user2 string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Recents is the live recent-chats list for one user: the newest
// connections ordered by last activity.
type Recents struct {
	me     string
	client *backend.Client
	feed   *livefeed.Feed[store.Connection]
	logger *zap.Logger
}

// NewRecents creates the list and registers its change-feed subscription.
func NewRecents(b *bus.Bus, client *backend.Client, rt *backend.Feed, me string, logger *zap.Logger) (*Recents, error) {
	if me == "" {
		return nil, errors.New("user id is required")
	}

	r := &Recents{me: me, client: client, logger: logger}

	fetch := func(ctx context.Context) ([]store.Connection, error) {
		var rows []store.Connection
		q := backend.NewQuery().
			Where(backend.Or(backend.Eq("user1_id", me), backend.Eq("user2_id", me))).
			OrderDesc("updated_at").
			Limit(RecentLimit)
		if err := client.Select(ctx, backend.TableConnections, q, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	r.feed = livefeed.New(b, fetch, r.decode, livefeed.Options{
		Topic:         bus.TopicRealtime + backend.TableConnections,
		RetryAttempts: fetchRetries,
		RetryBase:     fetchRetryBase,
		UpdateInPlace: true,
	}, logger)

	filter := backend.FilterExpr(backend.Or(backend.Eq("user1_id", me), backend.Eq("user2_id", me)))
	if err := rt.Join(backend.TableConnections, backend.EventAll, filter); err != nil {
		return nil, fmt.Errorf("join connection feed: %w", err)
	}
	return r, nil
}

func (r *Recents) decode(evt bus.Event) (store.Connection, bool) {
	ce, ok := evt.Payload.(*backend.ChangeEvent)
	if !ok || ce.Type == backend.EventDelete {
		return store.Connection{}, false
	}
	var c store.Connection
	if err := ce.Decode(&c); err != nil {
		r.logger.Warn("undecodable connection event", zap.Error(err))
		return store.Connection{}, false
	}
	if c.User1ID != r.me && c.User2ID != r.me {
		return store.Connection{}, false
	}
	return c, true
}

// Start loads the list, retrying transient failures, and then attaches
// the listener. After the retries are exhausted the list stays empty and
// Err reports the failure; live updates still apply.
func (r *Recents) Start(ctx context.Context) error { return r.feed.Start(ctx) }

// Refresh re-runs the fetch, for pull-to-refresh style recovery.
func (r *Recents) Refresh(ctx context.Context) error { return r.feed.Refresh(ctx) }

// Close detaches the listener.
func (r *Recents) Close() { r.feed.Close() }

// List returns the current recent chats, newest activity first, capped at
// RecentLimit. Live updates can grow the collection past the cap between
// refreshes; the view slice is trimmed here rather than dropping data.
func (r *Recents) List() []store.Connection {
	rows := r.feed.Snapshot()
	sortByActivity(rows)
	if len(rows) > RecentLimit {
		rows = rows[:RecentLimit]
	}
	return rows
}

// Loading reports whether the initial fetch is still running.
func (r *Recents) Loading() bool { return r.feed.Loading() }

// Err returns the last fetch error, nil once a fetch has succeeded.
func (r *Recents) Err() error { return r.feed.Err() }

// SetNotify registers the redraw callback.
func (r *Recents) SetNotify(fn func()) { r.feed.SetNotify(fn) }

func sortByActivity(rows []store.Connection) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].UpdatedAt.After(rows[j-1].UpdatedAt); j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

// Ensure creates the connection row for the pair if it does not exist
// yet, or refreshes its preview if it does. The write is an upsert keyed
// on the normalized pair, so concurrent calls from both sides converge on
// one row.
func Ensure(ctx context.Context, client *backend.Client, a, b, lastMessage string) (store.Connection, error) {
	if a == b {
		return store.Connection{}, ErrSamePair
	}
	u1, u2 := NormalizePair(a, b)
	// The row id is server-assigned; sending the zero id would fight the
	// column default, so the payload names only the pair and the preview.
	row := map[string]any{
		"user1_id":     u1,
		"user2_id":     u2,
		"last_message": lastMessage,
		"updated_at":   time.Now().UTC().Format(time.RFC3339),
	}
	var out store.Connection
	if err := client.Upsert(ctx, backend.TableConnections, "user1_id,user2_id", row, &out); err != nil {
		return store.Connection{}, fmt.Errorf("ensure connection: %w", err)
	}
	return out, nil
}

// TouchPreview updates the connection's last-message preview after a
// send. Missing rows are not an error; the next Ensure creates them.
func TouchPreview(ctx context.Context, client *backend.Client, a, b, lastMessage string) error {
	u1, u2 := NormalizePair(a, b)
	q := backend.NewQuery().
		Where(backend.Eq("user1_id", u1)).
		Where(backend.Eq("user2_id", u2))
	patch := map[string]any{
		"last_message": lastMessage,
		"updated_at":   time.Now().UTC().Format(time.RFC3339),
	}
	return client.Update(ctx, backend.TableConnections, q, patch)
}
