package messaging

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/store"
)

// Uploader pushes attachment payloads to the bucket matching the message
// kind and hands back the public URL for the message row.
type Uploader struct {
	storage *backend.Storage
}

func NewUploader(storage *backend.Storage) *Uploader {
	return &Uploader{storage: storage}
}

// Upload stores the payload under a random object name that keeps the
// original extension. The returned URL is what goes into the message's
// file_url column; fileName is echoed back for file_name.
func (u *Uploader) Upload(ctx context.Context, kind, fileName string, payload io.Reader) (url, name string, err error) {
	bucket, err := bucketFor(kind)
	if err != nil {
		return "", "", err
	}

	ext := filepath.Ext(fileName)
	object := uuid.New().String() + ext

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := u.storage.Upload(ctx, bucket, object, contentType, payload); err != nil {
		return "", "", fmt.Errorf("upload attachment: %w", err)
	}
	return u.storage.PublicURL(bucket, object), fileName, nil
}

func bucketFor(kind string) (string, error) {
	switch kind {
	case store.KindImage:
		return backend.BucketChatImages, nil
	case store.KindVoice:
		return backend.BucketChatAudio, nil
	case store.KindFile:
		return backend.BucketChatFiles, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
