package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// UpsertProfile inserts or updates a cached profile.
func (db *DB) UpsertProfile(p *Profile) error {
	teach, err := json.Marshal(p.SkillsTeach)
	if err != nil {
		return fmt.Errorf("encode skills_teach: %w", err)
	}
	learn, err := json.Marshal(p.SkillsLearn)
	if err != nil {
		return fmt.Errorf("encode skills_learn: %w", err)
	}
	verified, err := json.Marshal(p.VerifiedSkills)
	if err != nil {
		return fmt.Errorf("encode verified_skills: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO profiles (id, full_name, avatar_url, bio, skills_teach, skills_learn, location, language, verified_skills, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			avatar_url = excluded.avatar_url,
			bio = excluded.bio,
			skills_teach = excluded.skills_teach,
			skills_learn = excluded.skills_learn,
			location = excluded.location,
			language = excluded.language,
			verified_skills = excluded.verified_skills,
			updated_at = excluded.updated_at`,
		p.ID, p.FullName, p.AvatarURL, p.Bio, string(teach), string(learn),
		p.Location, p.Language, string(verified), p.UpdatedAt.UnixMilli())
	return err
}

// GetProfile returns a cached profile by user id, or nil.
func (db *DB) GetProfile(id string) (*Profile, error) {
	var p Profile
	var teach, learn, verified string
	var updated int64
	err := db.QueryRow(`
		SELECT id, full_name, avatar_url, bio, skills_teach, skills_learn, location, language, verified_skills, updated_at
		FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.FullName, &p.AvatarURL, &p.Bio, &teach, &learn, &p.Location, &p.Language, &verified, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(teach), &p.SkillsTeach); err != nil {
		return nil, fmt.Errorf("decode skills_teach: %w", err)
	}
	if err := json.Unmarshal([]byte(learn), &p.SkillsLearn); err != nil {
		return nil, fmt.Errorf("decode skills_learn: %w", err)
	}
	if err := json.Unmarshal([]byte(verified), &p.VerifiedSkills); err != nil {
		return nil, fmt.Errorf("decode verified_skills: %w", err)
	}
	p.UpdatedAt = time.UnixMilli(updated)
	return &p, nil
}
