package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Buckets used for chat attachments.
const (
	BucketChatFiles  = "chat-files"
	BucketChatImages = "chat-images"
	BucketChatAudio  = "chat-audio"
	BucketAvatars    = "avatars"
)

// Storage wraps the blob storage surface: upload an object, derive its
// public URL.
type Storage struct {
	client *Client
}

// NewStorage creates the storage adapter on top of the REST client.
func NewStorage(client *Client) *Storage {
	return &Storage{client: client}
}

// Upload stores the payload under bucket/path with the given content type.
func (s *Storage) Upload(ctx context.Context, bucket, path, contentType string, payload io.Reader) error {
	u := s.client.baseURL + "/storage/v1/object/" + bucket + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, payload)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", s.client.apiKey)
	req.Header.Set("Content-Type", contentType)
	if tok := s.client.auth.AccessToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := s.client.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return nil
}

// PublicURL returns the retrievable URL of an uploaded object.
func (s *Storage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.client.baseURL, bucket, path)
}
