package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

// backendServer fakes the REST surface: GET returns the configured
// history, POST echoes the inserted row back as a one-element array.
func backendServer(t *testing.T, history []store.Message, failWrites bool) (*httptest.Server, *[]store.Message) {
	t.Helper()
	var inserted []store.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/messages" {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(history)
		case http.MethodPost:
			if failWrites {
				http.Error(w, `{"message":"row level security"}`, http.StatusForbidden)
				return
			}
			body, _ := io.ReadAll(r.Body)
			var m store.Message
			if err := json.Unmarshal(body, &m); err != nil {
				t.Errorf("bad insert body: %v", err)
			}
			inserted = append(inserted, m)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("[" + string(body) + "]"))
		default:
			http.Error(w, "method", http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &inserted
}

func newTestThread(t *testing.T, srv *httptest.Server, b *bus.Bus, me, other string) *Thread {
	t.Helper()
	auth := backend.NewAuth(srv.URL, "anon-key", filepath.Join(t.TempDir(), "auth.json"))
	client := backend.NewClient(srv.URL, "anon-key", auth)
	rt := backend.NewFeed(srv.URL, "anon-key", auth, b, zap.NewNop())

	th, err := NewThread(b, client, rt, me, other, zap.NewNop())
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	t.Cleanup(th.Close)
	return th
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

func TestNewThreadRequiresParticipants(t *testing.T) {
	srv, _ := backendServer(t, nil, false)
	auth := backend.NewAuth(srv.URL, "anon-key", filepath.Join(t.TempDir(), "auth.json"))
	client := backend.NewClient(srv.URL, "anon-key", auth)
	b := bus.New()
	rt := backend.NewFeed(srv.URL, "anon-key", auth, b, zap.NewNop())

	for _, tc := range []struct{ me, other string }{
		{"", "bob"},
		{"alice", ""},
		{"", ""},
	} {
		if _, err := NewThread(b, client, rt, tc.me, tc.other, zap.NewNop()); !errors.Is(err, ErrInvalidParticipants) {
			t.Errorf("NewThread(%q, %q) err = %v, want ErrInvalidParticipants", tc.me, tc.other, err)
		}
	}
}

func TestSendValidation(t *testing.T) {
	srv, inserted := backendServer(t, nil, false)
	th := newTestThread(t, srv, bus.New(), "alice", "bob")

	tests := []struct {
		name    string
		content string
		kind    string
		fileURL string
		want    error
	}{
		{"empty text", "", store.KindText, "", ErrEmptyContent},
		{"whitespace text", "   \n\t", store.KindText, "", ErrEmptyContent},
		{"file without url", "", store.KindFile, "", ErrMissingAttachment},
		{"image without url", "look", store.KindImage, "", ErrMissingAttachment},
		{"voice without url", "", store.KindVoice, "", ErrMissingAttachment},
		{"bogus kind", "hi", "sticker", "", ErrUnknownKind},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := th.Send(context.Background(), tc.content, tc.kind, tc.fileURL, "")
			if !errors.Is(err, tc.want) {
				t.Fatalf("Send err = %v, want %v", err, tc.want)
			}
		})
	}
	if len(*inserted) != 0 {
		t.Fatalf("rejected sends reached the backend: %d rows", len(*inserted))
	}
	if len(th.Messages()) != 0 {
		t.Fatalf("rejected sends were merged locally: %d records", len(th.Messages()))
	}
}

func TestSendMergesConfirmedRow(t *testing.T) {
	srv, inserted := backendServer(t, nil, false)
	b := bus.New()
	th := newTestThread(t, srv, b, "alice", "bob")
	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sent, err := th.Send(context.Background(), "hello bob", store.KindText, "", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.ID == "" {
		t.Fatal("sent message has no id")
	}
	if len(*inserted) != 1 || (*inserted)[0].ID != sent.ID {
		t.Fatalf("backend write mismatch: %+v", *inserted)
	}

	msgs := th.Messages()
	if len(msgs) != 1 || msgs[0].Content != "hello bob" {
		t.Fatalf("messages after send = %+v", msgs)
	}

	// The feed echo of the same row must not duplicate the optimistic copy.
	row, _ := json.Marshal(sent)
	b.Publish(bus.Event{
		Kind:      bus.TopicRealtime + backend.TableMessages,
		Timestamp: time.Now(),
		Payload:   &backend.ChangeEvent{Table: backend.TableMessages, Type: backend.EventInsert, Row: row},
	})
	time.Sleep(50 * time.Millisecond)
	if got := len(th.Messages()); got != 1 {
		t.Fatalf("feed echo duplicated the message: %d records", got)
	}
}

func TestSendFailureLeavesCollectionUntouched(t *testing.T) {
	srv, _ := backendServer(t, nil, true)
	th := newTestThread(t, srv, bus.New(), "alice", "bob")
	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err := th.Send(context.Background(), "hello", store.KindText, "", "")
	if err == nil {
		t.Fatal("Send succeeded against failing backend")
	}
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want wrapped 403 APIError", err)
	}
	if len(th.Messages()) != 0 {
		t.Fatal("failed send was merged locally")
	}
}

func TestSendAttachmentPlaceholders(t *testing.T) {
	srv, inserted := backendServer(t, nil, false)
	th := newTestThread(t, srv, bus.New(), "alice", "bob")

	tests := []struct {
		kind     string
		fileName string
		want     string
	}{
		{store.KindFile, "notes.pdf", "Shared a file: notes.pdf"},
		{store.KindImage, "cat.png", "Shared an image: cat.png"},
		{store.KindVoice, "clip.webm", "Voice message"},
	}
	for _, tc := range tests {
		sent, err := th.Send(context.Background(), "", tc.kind, "https://cdn.example/"+tc.fileName, tc.fileName)
		if err != nil {
			t.Fatalf("Send(%s): %v", tc.kind, err)
		}
		if sent.Content != tc.want {
			t.Errorf("Send(%s) content = %q, want %q", tc.kind, sent.Content, tc.want)
		}
	}

	// An explicit caption wins over the placeholder.
	sent, err := th.Send(context.Background(), "check this out", store.KindImage, "https://cdn.example/x.png", "x.png")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.Content != "check this out" {
		t.Errorf("caption overridden: %q", sent.Content)
	}
	if len(*inserted) != 4 {
		t.Fatalf("expected 4 inserts, got %d", len(*inserted))
	}
}

func TestThreadIgnoresOtherConversations(t *testing.T) {
	srv, _ := backendServer(t, nil, false)
	b := bus.New()
	th := newTestThread(t, srv, b, "alice", "bob")
	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	publish := func(id, sender, receiver string) {
		row, _ := json.Marshal(store.Message{
			ID: id, SenderID: sender, ReceiverID: receiver,
			Content: "x", Kind: store.KindText, Timestamp: time.Now(),
		})
		b.Publish(bus.Event{
			Kind:      bus.TopicRealtime + backend.TableMessages,
			Timestamp: time.Now(),
			Payload:   &backend.ChangeEvent{Table: backend.TableMessages, Type: backend.EventInsert, Row: row},
		})
	}

	publish("m-stranger", "carol", "dave")
	publish("m-mine", "bob", "alice")

	waitFor(t, func() bool { return len(th.Messages()) == 1 })
	if got := th.Messages()[0].ID; got != "m-mine" {
		t.Fatalf("merged wrong message: %s", got)
	}
}

func TestThreadLoadsHistoryInOrder(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	history := []store.Message{
		{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "first", Kind: store.KindText, Timestamp: base},
		{ID: "m2", SenderID: "bob", ReceiverID: "alice", Content: "second", Kind: store.KindText, Timestamp: base.Add(time.Minute)},
	}
	srv, _ := backendServer(t, history, false)
	th := newTestThread(t, srv, bus.New(), "alice", "bob")
	if err := th.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return !th.Loading() })
	msgs := th.Messages()
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("history = %+v", msgs)
	}
}

func TestBucketFor(t *testing.T) {
	for kind, want := range map[string]string{
		store.KindFile:  backend.BucketChatFiles,
		store.KindImage: backend.BucketChatImages,
		store.KindVoice: backend.BucketChatAudio,
	} {
		got, err := bucketFor(kind)
		if err != nil || got != want {
			t.Errorf("bucketFor(%s) = %q, %v; want %q", kind, got, err, want)
		}
	}
	if _, err := bucketFor(store.KindText); err == nil {
		t.Error("bucketFor(text) did not fail")
	}
}

func TestUploaderObjectNaming(t *testing.T) {
	var gotBucket, gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/storage/v1/object/"), "/", 2)
		if len(parts) == 2 {
			gotBucket, gotPath = parts[0], parts[1]
		}
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Key":"ok"}`))
	}))
	defer srv.Close()

	auth := backend.NewAuth(srv.URL, "anon-key", filepath.Join(t.TempDir(), "auth.json"))
	client := backend.NewClient(srv.URL, "anon-key", auth)
	up := NewUploader(backend.NewStorage(client))

	url, name, err := up.Upload(context.Background(), store.KindImage, "cat.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if name != "cat.png" {
		t.Errorf("name = %q", name)
	}
	if gotBucket != backend.BucketChatImages {
		t.Errorf("bucket = %q", gotBucket)
	}
	if !strings.HasSuffix(gotPath, ".png") || gotPath == "cat.png" {
		t.Errorf("object path %q should be random with .png extension", gotPath)
	}
	if gotType != "image/png" {
		t.Errorf("content type = %q", gotType)
	}
	if !strings.Contains(url, "/storage/v1/object/public/"+backend.BucketChatImages+"/") {
		t.Errorf("public url = %q", url)
	}
}
