// Package messaging binds one conversation to the live collection
// pattern: bulk fetch, change-feed merges, and the send entry point with
// its optimistic local copy.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/livefeed"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

// Send precondition failures. They are reported synchronously; nothing is
// written and nothing is merged.
var (
	ErrInvalidParticipants = errors.New("both participant ids are required")
	ErrEmptyContent        = errors.New("message content is empty")
	ErrMissingAttachment   = errors.New("attachment url is required for this message kind")
	ErrUnknownKind         = errors.New("unknown message kind")
)

// Thread is the live view of one conversation between the current user
// and one partner. It is bound to that pair for its whole life; opening a
// chat with someone else means closing this thread and creating a new one.
type Thread struct {
	me     string
	other  string
	client *backend.Client
	feed   *livefeed.Feed[store.Message]
	logger *zap.Logger
}

// NewThread creates the thread and registers its change-feed subscription
// for the symmetric pair filter. Call Start to load history.
func NewThread(b *bus.Bus, client *backend.Client, rt *backend.Feed, me, other string, logger *zap.Logger) (*Thread, error) {
	if me == "" || other == "" {
		return nil, ErrInvalidParticipants
	}

	t := &Thread{me: me, other: other, client: client, logger: logger}

	fetch := func(ctx context.Context) ([]store.Message, error) {
		var rows []store.Message
		q := backend.NewQuery().
			Where(backend.PairFilter(me, other)).
			OrderAsc("timestamp")
		if err := client.Select(ctx, backend.TableMessages, q, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	t.feed = livefeed.New(b, fetch, t.decode, livefeed.Options{
		Topic: bus.TopicRealtime + backend.TableMessages,
	}, logger)

	if err := rt.Join(backend.TableMessages, backend.EventInsert, backend.FilterExpr(backend.PairFilter(me, other))); err != nil {
		return nil, fmt.Errorf("join message feed: %w", err)
	}
	return t, nil
}

// decode translates a change event into a message, applying the pair
// filter client-side as well: the shared feed connection may carry rows
// for other subscriptions.
func (t *Thread) decode(evt bus.Event) (store.Message, bool) {
	ce, ok := evt.Payload.(*backend.ChangeEvent)
	if !ok || ce.Type != backend.EventInsert {
		return store.Message{}, false
	}
	var m store.Message
	if err := ce.Decode(&m); err != nil {
		t.logger.Warn("undecodable message event", zap.Error(err))
		return store.Message{}, false
	}
	if !t.involves(m) {
		return store.Message{}, false
	}
	return m, true
}

func (t *Thread) involves(m store.Message) bool {
	return (m.SenderID == t.me && m.ReceiverID == t.other) ||
		(m.SenderID == t.other && m.ReceiverID == t.me)
}

// Start loads the conversation history and attaches the listener.
func (t *Thread) Start(ctx context.Context) error { return t.feed.Start(ctx) }

// Close tears the thread down; no merges occur afterwards.
func (t *Thread) Close() { t.feed.Close() }

// Messages returns the current ordered conversation.
func (t *Thread) Messages() []store.Message { return t.feed.Snapshot() }

// Loading reports whether the history fetch is in flight.
func (t *Thread) Loading() bool { return t.feed.Loading() }

// Err returns the last fetch error.
func (t *Thread) Err() error { return t.feed.Err() }

// SetNotify registers the redraw callback.
func (t *Thread) SetNotify(fn func()) { t.feed.SetNotify(fn) }

// Other returns the partner's user id.
func (t *Thread) Other() string { return t.other }

// Send validates, writes one message row and merges the confirmed record
// so the sender sees it without waiting for the feed round-trip. The
// message identifier is a client-generated UUID persisted as the row's
// primary key, so the optimistic copy and the feed's copy are the same
// record. On write failure nothing is merged and the caller keeps the
// content for retry.
func (t *Thread) Send(ctx context.Context, content, kind, fileURL, fileName string) (store.Message, error) {
	if t.me == "" || t.other == "" {
		return store.Message{}, ErrInvalidParticipants
	}

	content = strings.TrimSpace(content)
	switch kind {
	case store.KindText:
		if content == "" {
			return store.Message{}, ErrEmptyContent
		}
	case store.KindFile, store.KindImage, store.KindVoice:
		if fileURL == "" {
			return store.Message{}, ErrMissingAttachment
		}
		if content == "" {
			content = placeholder(kind, fileName)
		}
	default:
		return store.Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	now := time.Now().UTC()
	row := store.Message{
		ID:         uuid.New().String(),
		SenderID:   t.me,
		ReceiverID: t.other,
		Content:    content,
		Kind:       kind,
		FileURL:    fileURL,
		FileName:   fileName,
		Timestamp:  now,
		CreatedAt:  now,
	}

	var confirmed store.Message
	if err := t.client.Insert(ctx, backend.TableMessages, row, &confirmed); err != nil {
		t.logger.Error("send failed",
			zap.String("receiver", t.other),
			zap.String("kind", kind),
			zap.Error(err))
		return store.Message{}, fmt.Errorf("send message: %w", err)
	}

	t.feed.Merge(confirmed)
	return confirmed, nil
}

// placeholder derives human-readable content for attachment messages sent
// without a caption.
func placeholder(kind, fileName string) string {
	switch kind {
	case store.KindImage:
		return "Shared an image: " + fileName
	case store.KindVoice:
		return "Voice message"
	default:
		return "Shared a file: " + fileName
	}
}
