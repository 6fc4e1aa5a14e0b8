package session

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultProfile is the profile key used when none is configured.
const DefaultProfile = "default"

// PostgresStore implements Store using PostgreSQL (chatroom.token_pairs).
//
// One row per profile. Save is a single upsert statement, so readers see
// either the old pair or the new one, never a mix.
type PostgresStore struct {
	pool    *pgxpool.Pool
	profile string
}

// NewPostgresStore creates a Postgres-backed token store for one profile.
func NewPostgresStore(pool *pgxpool.Pool, profile string) *PostgresStore {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = DefaultProfile
	}
	return &PostgresStore{pool: pool, profile: profile}
}

// EnsureSchema creates the schema and table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS chatroom;
		CREATE TABLE IF NOT EXISTS chatroom.token_pairs (
			profile       text PRIMARY KEY,
			access_token  text NOT NULL DEFAULT '',
			refresh_token text NOT NULL DEFAULT '',
			updated_at    timestamptz NOT NULL DEFAULT now()
		);
	`)
	return err
}

// Load returns the stored pair for the profile, or an empty pair.
func (s *PostgresStore) Load(ctx context.Context) (TokenPair, error) {
	var p TokenPair
	err := s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token
		FROM chatroom.token_pairs
		WHERE profile = $1
	`, s.profile).Scan(&p.AccessToken, &p.RefreshToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenPair{}, nil
	}
	if err != nil {
		return TokenPair{}, err
	}
	return p, nil
}

// Save upserts both tokens in one statement.
func (s *PostgresStore) Save(ctx context.Context, pair TokenPair) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chatroom.token_pairs (profile, access_token, refresh_token, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (profile) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			updated_at    = EXCLUDED.updated_at
	`, s.profile, pair.AccessToken, pair.RefreshToken)
	return err
}

// Clear deletes the profile row.
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chatroom.token_pairs WHERE profile = $1`, s.profile)
	return err
}
