package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/solodesign/apiserver/types"
)

// ProfileRepository handles persistence for profiles.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (types.Profile, error) {
	const query = `
		SELECT id, user_id, full_name, role, created_at, updated_at
		FROM profiles
		WHERE user_id = $1`
	profile, err := scanProfile(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, err
	}
	return profile, nil
}

// Upsert creates the profile for its user or updates name and role in place.
func (r *ProfileRepository) Upsert(ctx context.Context, profile types.Profile) (types.Profile, error) {
	now := time.Now().UTC()
	profile.UpdatedAt = now
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}

	const query = `
		INSERT INTO profiles (user_id, full_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		profile.UserID,
		profile.FullName,
		string(profile.Role),
		profile.CreatedAt,
		profile.UpdatedAt,
	).Scan(&profile.ID, &profile.CreatedAt); err != nil {
		return types.Profile{}, err
	}
	return profile, nil
}

func (r *ProfileRepository) List(ctx context.Context, offset, limit int) ([]types.Profile, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const query = `
		SELECT id, user_id, full_name, role, created_at, updated_at
		FROM profiles
		ORDER BY created_at
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]types.Profile, 0, limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (types.Profile, error) {
	var (
		profile  types.Profile
		fullName sql.NullString
		role     string
	)
	if err := row.Scan(
		&profile.ID,
		&profile.UserID,
		&fullName,
		&role,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return types.Profile{}, err
	}
	if fullName.Valid {
		name := fullName.String
		profile.FullName = &name
	}
	profile.Role = types.Role(role)
	return profile, nil
}
