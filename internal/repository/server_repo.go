package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alamor-network/vpn-fulfillment-service/internal/models"
)

var ErrNotFound = errors.New("not found")

type ServerRepository struct {
	pool *pgxpool.Pool
}

func NewServerRepository(pool *pgxpool.Pool) *ServerRepository {
	return &ServerRepository{pool: pool}
}

const serverColumns = `id, name, panel_url, username, password,
	subscription_base_url, subscription_path_prefix,
	is_active, is_online, last_checked`

// GetByID resolves one server with its panel credentials.
func (r *ServerRepository) GetByID(ctx context.Context, serverID int64) (*models.Server, error) {
	query := fmt.Sprintf(`SELECT %s FROM fulfillment.servers WHERE id = $1`, serverColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, serverID))
}

// ListActive returns every server available for provisioning.
func (r *ServerRepository) ListActive(ctx context.Context) ([]*models.Server, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM fulfillment.servers
		WHERE is_active = TRUE
		ORDER BY id
	`, serverColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		s := &models.Server{}
		err := rows.Scan(
			&s.ID, &s.Name, &s.PanelURL, &s.Username, &s.Password,
			&s.SubscriptionBaseURL, &s.SubscriptionPathPrefix,
			&s.IsActive, &s.IsOnline, &s.LastChecked,
		)
		if err != nil {
			return nil, fmt.Errorf("scan server row: %w", err)
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// GetActiveInbounds returns the curated inbound selection for a server, in
// insertion order. Provisioning walks this list sequentially.
func (r *ServerRepository) GetActiveInbounds(ctx context.Context, serverID int64) ([]*models.ServerInbound, error) {
	query := `
		SELECT id, server_id, inbound_id, remark, is_active
		FROM fulfillment.server_inbounds
		WHERE server_id = $1 AND is_active = TRUE
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, serverID)
	if err != nil {
		return nil, fmt.Errorf("query server inbounds: %w", err)
	}
	defer rows.Close()

	var inbounds []*models.ServerInbound
	for rows.Next() {
		in := &models.ServerInbound{}
		if err := rows.Scan(&in.ID, &in.ServerID, &in.InboundID, &in.Remark, &in.IsActive); err != nil {
			return nil, fmt.Errorf("scan server inbound row: %w", err)
		}
		inbounds = append(inbounds, in)
	}
	return inbounds, rows.Err()
}

// UpdateStatus records the outcome of a panel health probe.
func (r *ServerRepository) UpdateStatus(ctx context.Context, serverID int64, online bool, checkedAt time.Time) error {
	query := `UPDATE fulfillment.servers SET is_online = $1, last_checked = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, query, online, checkedAt, serverID)
	if err != nil {
		return fmt.Errorf("update server status: %w", err)
	}
	return nil
}

func (r *ServerRepository) scanOne(row pgx.Row) (*models.Server, error) {
	s := &models.Server{}
	err := row.Scan(
		&s.ID, &s.Name, &s.PanelURL, &s.Username, &s.Password,
		&s.SubscriptionBaseURL, &s.SubscriptionPathPrefix,
		&s.IsActive, &s.IsOnline, &s.LastChecked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan server: %w", err)
	}
	return s, nil
}
