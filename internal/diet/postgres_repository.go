package diet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutriplan/nutriplan/internal/database"
)

// PostgresRepository stores user documents in PostgreSQL. The plan and the
// daily stats live in JSONB columns of user_documents.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL diet repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateDocument creates an empty document for the user if none exists.
func (r *PostgresRepository) CreateDocument(ctx context.Context, userID string) error {
	query := `
		INSERT INTO user_documents (user_id, daily_stats, updated_at)
		VALUES ($1, '{}'::jsonb, now())
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, userID)
	return classify(err)
}

// GetDocument returns the user's document.
func (r *PostgresRepository) GetDocument(ctx context.Context, userID string) (*UserDocument, error) {
	query := `SELECT current_diet_plan, daily_stats FROM user_documents WHERE user_id = $1`

	var planJSON, statsJSON []byte
	err := r.pool.QueryRow(ctx, query, userID).Scan(&planJSON, &statsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, classify(err)
	}

	return decodeDocument(userID, planJSON, statsJSON)
}

// UpdateDocument locks the user's row, applies fn and writes the result in
// the same transaction.
func (r *PostgresRepository) UpdateDocument(ctx context.Context, userID string, fn func(doc *UserDocument) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var planJSON, statsJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT current_diet_plan, daily_stats FROM user_documents WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&planJSON, &statsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return classify(err)
	}

	doc, err := decodeDocument(userID, planJSON, statsJSON)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}

	var newPlan []byte
	if doc.CurrentPlan != nil {
		if newPlan, err = json.Marshal(doc.CurrentPlan); err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
	}
	newStats, err := json.Marshal(doc.DailyStats)
	if err != nil {
		return fmt.Errorf("encode daily stats: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_documents SET current_diet_plan = $2, daily_stats = $3, updated_at = $4 WHERE user_id = $1`,
		userID, newPlan, newStats, time.Now(),
	)
	if err != nil {
		return classify(err)
	}

	for _, p := range doc.Archived {
		archived, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode archived plan: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO diet_plan_history (plan_id, user_id, plan, created_at, superseded_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (plan_id) DO NOTHING
		`, p.ID, userID, archived, p.CreatedAt)
		if err != nil {
			return classify(err)
		}
	}

	return classify(tx.Commit(ctx))
}

// ListHistory returns superseded plans, newest first.
func (r *PostgresRepository) ListHistory(ctx context.Context, userID string, limit int) ([]*DietPlan, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT plan FROM diet_plan_history
		WHERE user_id = $1
		ORDER BY superseded_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var plans []*DietPlan
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, classify(err)
		}
		var p DietPlan
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode archived plan: %w", err)
		}
		plans = append(plans, &p)
	}
	return plans, classify(rows.Err())
}

func decodeDocument(userID string, planJSON, statsJSON []byte) (*UserDocument, error) {
	doc := &UserDocument{UserID: userID}
	if len(planJSON) > 0 {
		doc.CurrentPlan = &DietPlan{}
		if err := json.Unmarshal(planJSON, doc.CurrentPlan); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &doc.DailyStats); err != nil {
			return nil, fmt.Errorf("decode daily stats: %w", err)
		}
	}
	return doc, nil
}

// classify marks connection-class failures as ErrTransientStore.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if database.IsTransient(err) {
		return fmt.Errorf("%w: %w", ErrTransientStore, err)
	}
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
