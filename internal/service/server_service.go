package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alamor-network/vpn-fulfillment-service/internal/config"
	"github.com/alamor-network/vpn-fulfillment-service/internal/models"
)

// ServerService handles panel server health and maintenance operations
type ServerService struct {
	cfg        *config.Config
	serverRepo ServerStore
	newPanel   PanelClientFactory
}

// NewServerService creates a new server service
func NewServerService(cfg *config.Config, serverRepo ServerStore, newPanel PanelClientFactory) *ServerService {
	if newPanel == nil {
		newPanel = DefaultPanelClientFactory
	}
	return &ServerService{
		cfg:        cfg,
		serverRepo: serverRepo,
		newPanel:   newPanel,
	}
}

// ListServers returns all active servers with their last known status
func (s *ServerService) ListServers(ctx context.Context) ([]models.ServerStatusResponse, error) {
	servers, err := s.serverRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}

	out := make([]models.ServerStatusResponse, 0, len(servers))
	for _, srv := range servers {
		entry := models.ServerStatusResponse{
			ID:       srv.ID,
			Name:     srv.Name,
			IsActive: srv.IsActive,
			IsOnline: srv.IsOnline,
		}
		if srv.LastChecked != nil {
			checked := srv.LastChecked.Format(time.RFC3339)
			entry.LastChecked = &checked
		}
		out = append(out, entry)
	}
	return out, nil
}

// CheckServer probes the server's panel with a login attempt and records
// the result.
func (s *ServerService) CheckServer(ctx context.Context, serverID int64) (*models.CheckServerResponse, error) {
	server, err := s.serverRepo.GetByID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("server %d: %w", serverID, err)
	}

	panel := s.newPanel(server.PanelURL, server.Username, server.Password, s.cfg.Panel.MaxRetries)
	online := true
	if err := panel.Login(ctx); err != nil {
		log.Printf("[ServerService] Health check failed for server=%d: %v", serverID, err)
		online = false
	}

	now := time.Now()
	if err := s.serverRepo.UpdateStatus(ctx, serverID, online, now); err != nil {
		return nil, fmt.Errorf("update server status: %w", err)
	}

	return &models.CheckServerResponse{
		ServerID:  serverID,
		Online:    online,
		CheckedAt: now.Format(time.RFC3339),
	}, nil
}

// CheckAllServers probes every active server in turn
func (s *ServerService) CheckAllServers(ctx context.Context) ([]models.CheckServerResponse, error) {
	servers, err := s.serverRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}

	results := make([]models.CheckServerResponse, 0, len(servers))
	for _, srv := range servers {
		result, err := s.CheckServer(ctx, srv.ID)
		if err != nil {
			log.Printf("[ServerService] Check failed for server=%d: %v", srv.ID, err)
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// ListPanelInbounds lists the inbounds present on the server's panel,
// used by the admin flow that picks which inbounds to sell.
func (s *ServerService) ListPanelInbounds(ctx context.Context, serverID int64) ([]models.InboundInfo, error) {
	panel, err := s.panelFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	inbounds, err := panel.ListInbounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list panel inbounds: %w", err)
	}

	out := make([]models.InboundInfo, 0, len(inbounds))
	for _, ib := range inbounds {
		out = append(out, models.InboundInfo{
			ID:       ib.ID,
			Remark:   ib.Remark,
			Port:     ib.Port,
			Protocol: ib.Protocol,
			Enable:   ib.Enable,
		})
	}
	return out, nil
}

// OnlineClients returns the client labels currently connected to the server
func (s *ServerService) OnlineClients(ctx context.Context, serverID int64) (*models.OnlineClientsResponse, error) {
	panel, err := s.panelFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	emails, err := panel.OnlineClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("online clients: %w", err)
	}

	return &models.OnlineClientsResponse{ServerID: serverID, Emails: emails}, nil
}

// ResetAllTraffics zeroes the traffic counters of every inbound on a server
func (s *ServerService) ResetAllTraffics(ctx context.Context, serverID int64) error {
	panel, err := s.panelFor(ctx, serverID)
	if err != nil {
		return err
	}

	if err := panel.ResetAllTraffics(ctx); err != nil {
		return fmt.Errorf("reset all traffics: %w", err)
	}

	log.Printf("[ServerService] Reset all inbound traffic on server=%d", serverID)
	return nil
}

// ResetAllClientTraffics zeroes every client counter on one inbound
func (s *ServerService) ResetAllClientTraffics(ctx context.Context, serverID int64, inboundID int) error {
	panel, err := s.panelFor(ctx, serverID)
	if err != nil {
		return err
	}

	if err := panel.ResetAllClientTraffics(ctx, inboundID); err != nil {
		return fmt.Errorf("reset all client traffics: %w", err)
	}

	log.Printf("[ServerService] Reset client traffic on server=%d inbound=%d", serverID, inboundID)
	return nil
}

// DeleteDepletedClients removes exhausted clients from one inbound
func (s *ServerService) DeleteDepletedClients(ctx context.Context, serverID int64, inboundID int) error {
	panel, err := s.panelFor(ctx, serverID)
	if err != nil {
		return err
	}

	if err := panel.DeleteDepletedClients(ctx, inboundID); err != nil {
		return fmt.Errorf("delete depleted clients: %w", err)
	}

	log.Printf("[ServerService] Deleted depleted clients on server=%d inbound=%d", serverID, inboundID)
	return nil
}

// panelFor resolves a server and returns an authenticated panel client
func (s *ServerService) panelFor(ctx context.Context, serverID int64) (PanelClient, error) {
	server, err := s.serverRepo.GetByID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("server %d: %w", serverID, err)
	}

	panel := s.newPanel(server.PanelURL, server.Username, server.Password, s.cfg.Panel.MaxRetries)
	if err := panel.Login(ctx); err != nil {
		return nil, fmt.Errorf("panel login: %w", err)
	}
	return panel, nil
}
