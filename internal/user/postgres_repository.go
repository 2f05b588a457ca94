package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository. The
// profile is stored as JSONB in user_profiles.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL user repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a user by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT user_id, locale, profile, created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`

	var (
		u           User
		profileJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Locale, &profileJSON, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Profile = DefaultProfile(u.UpdatedAt)
	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, u.Profile); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", id, err)
		}
	}
	return &u, nil
}

// Create inserts the profile row and the empty diet document in one
// transaction.
func (r *PostgresRepository) Create(ctx context.Context, user *User) error {
	profileJSON, err := encodeProfile(user)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO user_profiles (user_id, locale, profile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Locale, profileJSON, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUserExists
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_documents (user_id, daily_stats, updated_at)
		VALUES ($1, '{}'::jsonb, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, user.ID, user.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Update updates an existing user profile.
func (r *PostgresRepository) Update(ctx context.Context, user *User) error {
	profileJSON, err := encodeProfile(user)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE user_profiles SET locale = $2, profile = $3, updated_at = $4
		WHERE user_id = $1
	`, user.ID, user.Locale, profileJSON, user.UpdatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete deletes a user profile. Documents and history cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, id)
	return err
}

func encodeProfile(user *User) ([]byte, error) {
	profile := user.Profile
	if profile == nil {
		profile = DefaultProfile(time.Now())
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("encode profile %s: %w", user.ID, err)
	}
	return data, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
