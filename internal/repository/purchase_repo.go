package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alamor-network/vpn-fulfillment-service/internal/models"
)

type PurchaseRepository struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{pool: pool}
}

const purchaseColumns = `id, user_id, server_id, source,
	client_uuid, client_email, sub_id, subscription_link, configs_json,
	volume_gb, expire_at, is_active, created_at, updated_at`

func (r *PurchaseRepository) Create(ctx context.Context, p *models.Purchase) error {
	query := `
		INSERT INTO fulfillment.purchases (
			id, user_id, server_id, source,
			client_uuid, client_email, sub_id, subscription_link, configs_json,
			volume_gb, expire_at, is_active
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12
		)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.UserID, p.ServerID, p.Source,
		p.ClientUUID, p.ClientEmail, p.SubID, p.SubscriptionLink, p.ConfigsJSON,
		p.VolumeGB, p.ExpireAt, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) GetByID(ctx context.Context, id string) (*models.Purchase, error) {
	query := fmt.Sprintf(`SELECT %s FROM fulfillment.purchases WHERE id = $1`, purchaseColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByUser returns a user's purchases, newest first.
func (r *PurchaseRepository) GetByUser(ctx context.Context, userID int64) ([]*models.Purchase, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM fulfillment.purchases
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, purchaseColumns)
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *PurchaseRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE fulfillment.purchases SET is_active = FALSE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate purchase: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) scanOne(row pgx.Row) (*models.Purchase, error) {
	p := &models.Purchase{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.ServerID, &p.Source,
		&p.ClientUUID, &p.ClientEmail, &p.SubID, &p.SubscriptionLink, &p.ConfigsJSON,
		&p.VolumeGB, &p.ExpireAt, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	return p, nil
}

func (r *PurchaseRepository) scanMany(rows pgx.Rows) ([]*models.Purchase, error) {
	var results []*models.Purchase
	for rows.Next() {
		p := &models.Purchase{}
		err := rows.Scan(
			&p.ID, &p.UserID, &p.ServerID, &p.Source,
			&p.ClientUUID, &p.ClientEmail, &p.SubID, &p.SubscriptionLink, &p.ConfigsJSON,
			&p.VolumeGB, &p.ExpireAt, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan purchase row: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}
