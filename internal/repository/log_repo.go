package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alamor-network/vpn-fulfillment-service/internal/models"
)

type LogRepository struct {
	pool *pgxpool.Pool
}

func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// Create creates a new fulfillment log entry
func (r *LogRepository) Create(ctx context.Context, logEntry *models.FulfillmentLog) error {
	if logEntry.ID == "" {
		logEntry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO fulfillment.fulfillment_logs (id, purchase_id, action, status, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		logEntry.ID, logEntry.PurchaseID, logEntry.Action, logEntry.Status, logEntry.Message, logEntry.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert fulfillment log: %w", err)
	}

	return nil
}

// GetByPurchaseID retrieves logs for a purchase
func (r *LogRepository) GetByPurchaseID(ctx context.Context, purchaseID string, limit int) ([]*models.FulfillmentLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, purchase_id, action, status, message, metadata, created_at
		FROM fulfillment.fulfillment_logs
		WHERE purchase_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, purchaseID, limit)
	if err != nil {
		return nil, fmt.Errorf("query fulfillment logs: %w", err)
	}
	defer rows.Close()

	var logEntries []*models.FulfillmentLog
	for rows.Next() {
		logEntry := &models.FulfillmentLog{}
		err := rows.Scan(
			&logEntry.ID, &logEntry.PurchaseID, &logEntry.Action, &logEntry.Status,
			&logEntry.Message, &logEntry.Metadata, &logEntry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fulfillment log: %w", err)
		}
		logEntries = append(logEntries, logEntry)
	}

	return logEntries, rows.Err()
}

// LogAction is a helper to log an action
func (r *LogRepository) LogAction(ctx context.Context, purchaseID, action, status, message string) error {
	return r.Create(ctx, &models.FulfillmentLog{
		PurchaseID: purchaseID,
		Action:     action,
		Status:     status,
		Message:    message,
	})
}

// LogActionWithMetadata is a helper to log an action with metadata
func (r *LogRepository) LogActionWithMetadata(ctx context.Context, purchaseID, action, status, message string, metadata map[string]interface{}) error {
	return r.Create(ctx, &models.FulfillmentLog{
		PurchaseID: purchaseID,
		Action:     action,
		Status:     status,
		Message:    message,
		Metadata:   metadata,
	})
}
