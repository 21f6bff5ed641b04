// Package profiles reads and writes user profiles, including skill
// verification results and avatar uploads.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/store"
	"go.uber.org/zap"
)

// Verification levels, derived from the test score.
const (
	LevelExpert     = "Expert"
	LevelAdvanced   = "Advanced"
	LevelProficient = "Proficient"
	LevelBeginner   = "Beginner"
)

// PassingScore is the lowest score that earns a verification badge above
// beginner.
const PassingScore = 75

// LevelForScore maps a test score to its verification level.
func LevelForScore(score int) string {
	switch {
	case score >= 90:
		return LevelExpert
	case score >= 80:
		return LevelAdvanced
	case score >= PassingScore:
		return LevelProficient
	default:
		return LevelBeginner
	}
}

var ErrNotFound = errors.New("profile not found")

// Service reads profiles through the backend with the local cache as a
// fallback, and writes through to both.
type Service struct {
	client  *backend.Client
	storage *backend.Storage
	db      *store.DB
	logger  *zap.Logger
}

func NewService(client *backend.Client, storage *backend.Storage, db *store.DB, logger *zap.Logger) *Service {
	return &Service{client: client, storage: storage, db: db, logger: logger}
}

// Get fetches the profile for userID. When the backend is unreachable the
// cached copy is served instead, so the UI can render offline.
func (s *Service) Get(ctx context.Context, userID string) (store.Profile, error) {
	var rows []store.Profile
	q := backend.NewQuery().Where(backend.Eq("id", userID))
	err := s.client.Select(ctx, backend.TableProfiles, q, &rows)
	if err != nil {
		s.logger.Warn("profile fetch failed, trying cache", zap.String("user_id", userID), zap.Error(err))
		cached, cacheErr := s.db.GetProfile(userID)
		if cacheErr != nil || cached == nil {
			return store.Profile{}, fmt.Errorf("fetch profile: %w", err)
		}
		return *cached, nil
	}
	if len(rows) == 0 {
		return store.Profile{}, ErrNotFound
	}

	p := rows[0]
	if err := s.db.UpsertProfile(&p); err != nil {
		s.logger.Warn("profile cache write failed", zap.Error(err))
	}
	return p, nil
}

// Save upserts the profile and refreshes the cache with the confirmed row.
func (s *Service) Save(ctx context.Context, p store.Profile) (store.Profile, error) {
	if p.ID == "" {
		return store.Profile{}, errors.New("profile id is required")
	}
	p.UpdatedAt = time.Now().UTC()

	var out store.Profile
	if err := s.client.Upsert(ctx, backend.TableProfiles, "id", p, &out); err != nil {
		return store.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	if err := s.db.UpsertProfile(&out); err != nil {
		s.logger.Warn("profile cache write failed", zap.Error(err))
	}
	return out, nil
}

// RecordVerification stores a completed skill test result on the profile.
// Retaking a test overwrites the previous badge for that skill, whatever
// the new score.
func (s *Service) RecordVerification(ctx context.Context, userID, skill string, score int) (store.Verification, error) {
	if skill == "" {
		return store.Verification{}, errors.New("skill name is required")
	}
	if score < 0 || score > 100 {
		return store.Verification{}, fmt.Errorf("score %d out of range", score)
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return store.Verification{}, err
	}
	if p.VerifiedSkills == nil {
		p.VerifiedSkills = make(map[string]store.Verification)
	}
	v := store.Verification{
		Level:       LevelForScore(score),
		Score:       score,
		CompletedAt: time.Now().UTC(),
	}
	p.VerifiedSkills[skill] = v

	if _, err := s.Save(ctx, p); err != nil {
		return store.Verification{}, err
	}
	s.logger.Info("skill verified",
		zap.String("user_id", userID),
		zap.String("skill", skill),
		zap.Int("score", score),
		zap.String("level", v.Level))
	return v, nil
}

// UploadAvatar stores the image and points the profile at its public URL.
func (s *Service) UploadAvatar(ctx context.Context, userID, fileName string, payload io.Reader) (string, error) {
	ext := filepath.Ext(fileName)
	object := userID + ext

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.storage.Upload(ctx, backend.BucketAvatars, object, contentType, payload); err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	url := s.storage.PublicURL(backend.BucketAvatars, object)

	q := backend.NewQuery().Where(backend.Eq("id", userID))
	patch := map[string]any{
		"avatar_url": url,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.client.Update(ctx, backend.TableProfiles, q, patch); err != nil {
		return "", fmt.Errorf("update avatar url: %w", err)
	}
	return url, nil
}
