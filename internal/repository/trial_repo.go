package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TrialRepository struct {
	pool *pgxpool.Pool
}

func NewTrialRepository(pool *pgxpool.Pool) *TrialRepository {
	return &TrialRepository{pool: pool}
}

// HasUsedTrial reports whether the user has already claimed a free trial.
func (r *TrialRepository) HasUsedTrial(ctx context.Context, userID int64) (bool, error) {
	query := `SELECT 1 FROM fulfillment.free_trials WHERE user_id = $1`

	var one int
	err := r.pool.QueryRow(ctx, query, userID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query free trial: %w", err)
	}

	return true, nil
}

// MarkTrialUsed records the user's trial claim. Inserting twice for the
// same user fails on the primary key, which keeps the one-per-user rule
// enforced at the database level.
func (r *TrialRepository) MarkTrialUsed(ctx context.Context, userID int64, purchaseID string) error {
	query := `
		INSERT INTO fulfillment.free_trials (user_id, purchase_id)
		VALUES ($1, $2)
	`

	_, err := r.pool.Exec(ctx, query, userID, purchaseID)
	if err != nil {
		return fmt.Errorf("insert free trial: %w", err)
	}

	return nil
}
