package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/alamor-network/vpn-fulfillment-service/internal/config"
	"github.com/alamor-network/vpn-fulfillment-service/internal/models"
	"github.com/alamor-network/vpn-fulfillment-service/internal/vpnconfig"
	"github.com/alamor-network/vpn-fulfillment-service/internal/xui"
)

// Store interfaces the services depend on. The pgx repositories satisfy
// them; tests use in-memory fakes.

type ServerStore interface {
	GetByID(ctx context.Context, serverID int64) (*models.Server, error)
	ListActive(ctx context.Context) ([]*models.Server, error)
	GetActiveInbounds(ctx context.Context, serverID int64) ([]*models.ServerInbound, error)
	UpdateStatus(ctx context.Context, serverID int64, online bool, checkedAt time.Time) error
}

type PurchaseStore interface {
	Create(ctx context.Context, p *models.Purchase) error
	GetByID(ctx context.Context, id string) (*models.Purchase, error)
	GetByUser(ctx context.Context, userID int64) ([]*models.Purchase, error)
	Deactivate(ctx context.Context, id string) error
}

type TrialStore interface {
	HasUsedTrial(ctx context.Context, userID int64) (bool, error)
	MarkTrialUsed(ctx context.Context, userID int64, purchaseID string) error
}

type LogStore interface {
	LogAction(ctx context.Context, purchaseID, action, status, message string) error
	LogActionWithMetadata(ctx context.Context, purchaseID, action, status, message string, metadata map[string]interface{}) error
	GetByPurchaseID(ctx context.Context, purchaseID string, limit int) ([]*models.FulfillmentLog, error)
}

// DeliveryNotifier forwards fulfillment artifacts to the bot gateway
type DeliveryNotifier interface {
	NotifyDelivery(ctx context.Context, notification *models.DeliveryNotification) error
}

// PanelClient is the subset of panel operations the services need. The
// concrete implementation is xui.Client; tests substitute a fake.
type PanelClient interface {
	Login(ctx context.Context) error
	ListInbounds(ctx context.Context) ([]xui.Inbound, error)
	GetInbound(ctx context.Context, inboundID int) (*xui.Inbound, error)
	AddClient(ctx context.Context, inboundID int, client xui.ClientSetting) error
	DeleteClient(ctx context.Context, inboundID int, clientUUID string) error
	ResetClientTraffic(ctx context.Context, inboundID int, email string) error
	ResetAllTraffics(ctx context.Context) error
	ResetAllClientTraffics(ctx context.Context, inboundID int) error
	DeleteDepletedClients(ctx context.Context, inboundID int) error
	ClientIPs(ctx context.Context, email string) (string, error)
	ClearClientIPs(ctx context.Context, email string) error
	OnlineClients(ctx context.Context) ([]string, error)
}

// PanelClientFactory builds a panel client for a server's credentials.
// Each order uses a fresh client so sessions are never shared across
// concurrent requests.
type PanelClientFactory func(panelURL, username, password string, maxRetries int) PanelClient

// DefaultPanelClientFactory returns xui.NewClient as a PanelClient.
func DefaultPanelClientFactory(panelURL, username, password string, maxRetries int) PanelClient {
	return xui.NewClient(panelURL, username, password, maxRetries)
}

// ProvisionService handles VPN client provisioning on remote panels
type ProvisionService struct {
	cfg          *config.Config
	serverRepo   ServerStore
	purchaseRepo PurchaseStore
	trialRepo    TrialStore
	logRepo      LogStore
	notifyClient DeliveryNotifier
	newPanel     PanelClientFactory
}

// NewProvisionService creates a new provision service
func NewProvisionService(
	cfg *config.Config,
	serverRepo ServerStore,
	purchaseRepo PurchaseStore,
	trialRepo TrialStore,
	logRepo LogStore,
	notifyClient DeliveryNotifier,
	newPanel PanelClientFactory,
) *ProvisionService {
	if newPanel == nil {
		newPanel = DefaultPanelClientFactory
	}
	return &ProvisionService{
		cfg:          cfg,
		serverRepo:   serverRepo,
		purchaseRepo: purchaseRepo,
		trialRepo:    trialRepo,
		logRepo:      logRepo,
		notifyClient: notifyClient,
		newPanel:     newPanel,
	}
}

var ErrTrialAlreadyUsed = fmt.Errorf("free trial already claimed")

// Provision creates a VPN client on every active inbound of the chosen
// server, persists the purchase and notifies the bot gateway.
func (s *ProvisionService) Provision(ctx context.Context, req *models.ProvisionRequest) (*models.ProvisionResult, error) {
	return s.provision(ctx, req, models.SourcePurchase)
}

// ProvisionTrial provisions the free trial package for a user, at most
// once per user.
func (s *ProvisionService) ProvisionTrial(ctx context.Context, req *models.TrialRequest) (*models.ProvisionResult, error) {
	used, err := s.trialRepo.HasUsedTrial(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("check trial: %w", err)
	}
	if used {
		return nil, ErrTrialAlreadyUsed
	}

	result, err := s.provision(ctx, &models.ProvisionRequest{
		UserID:       req.UserID,
		ServerID:     req.ServerID,
		TotalGB:      s.cfg.Trial.VolumeGB,
		DurationDays: s.cfg.Trial.DurationDays,
	}, models.SourceTrial)
	if err != nil {
		return nil, err
	}

	if err := s.trialRepo.MarkTrialUsed(ctx, req.UserID, result.PurchaseID); err != nil {
		log.Printf("[ProvisionService] Failed to record trial claim for user=%d: %v", req.UserID, err)
	}

	return result, nil
}

func (s *ProvisionService) provision(ctx context.Context, req *models.ProvisionRequest, source string) (*models.ProvisionResult, error) {
	log.Printf("[ProvisionService] Provisioning for user=%d, server=%d, volume=%.2fGB, days=%d",
		req.UserID, req.ServerID, req.TotalGB, req.DurationDays)

	// 1. Resolve the server and its active inbounds
	server, err := s.serverRepo.GetByID(ctx, req.ServerID)
	if err != nil {
		return nil, fmt.Errorf("server %d: %w", req.ServerID, err)
	}
	if !server.IsActive {
		return nil, fmt.Errorf("server %d is disabled", req.ServerID)
	}

	inbounds, err := s.serverRepo.GetActiveInbounds(ctx, req.ServerID)
	if err != nil {
		return nil, fmt.Errorf("list inbounds for server %d: %w", req.ServerID, err)
	}
	if len(inbounds) == 0 {
		return nil, fmt.Errorf("server %d has no active inbounds", req.ServerID)
	}

	// 2. Authenticate against the panel with a fresh session
	panel := s.newPanel(server.PanelURL, server.Username, server.Password, s.cfg.Panel.MaxRetries)
	if err := panel.Login(ctx); err != nil {
		s.logRepo.LogAction(ctx, "", "panel_login_failed", "failed", err.Error())
		return nil, fmt.Errorf("panel login: %w", err)
	}

	// 3. One subscription identifier and quota for the whole order
	subID := generateSubID(12)
	totalBytes := quotaBytes(req.TotalGB)
	expiryMs := expiryMillis(req.DurationDays)
	purchaseID := uuid.New().String()

	// 4. Create a client on every inbound, sequentially. Each inbound
	// gets its own UUID and label (panels require globally unique
	// emails); subID ties them into one subscription. A single
	// AddClient failure aborts the whole order: clients created on
	// earlier inbounds are not rolled back, their identifiers are
	// logged for manual reconciliation. The first created client is
	// the representative credential persisted with the purchase.
	// Clients connect to the customer-facing address, not the panel's
	// management host.
	host := vpnconfig.HostFromURL(server.SubscriptionBaseURL)
	var configs []models.ClientConfig
	var created []string
	var repUUID, repEmail string

	for _, ib := range inbounds {
		clientUUID := uuid.New().String()
		email := generateEmailLabel(req.UserID, req.ServerID)
		setting := xui.ClientSetting{
			ID:         clientUUID,
			Email:      email,
			TotalGB:    totalBytes,
			ExpiryTime: expiryMs,
			Enable:     true,
			TgID:       fmt.Sprintf("%d", req.UserID),
			SubID:      subID,
		}

		if err := panel.AddClient(ctx, ib.InboundID, setting); err != nil {
			log.Printf("[ProvisionService] AddClient failed on inbound=%d, aborting order. Created so far: %v",
				ib.InboundID, created)
			s.logRepo.LogActionWithMetadata(ctx, purchaseID, "add_client_failed", "failed", err.Error(),
				map[string]interface{}{
					"inbound_id":      ib.InboundID,
					"created_clients": created,
					"sub_id":          subID,
				})
			return nil, fmt.Errorf("add client to inbound %d: %w", ib.InboundID, err)
		}
		created = append(created, fmt.Sprintf("inbound=%d uuid=%s email=%s", ib.InboundID, clientUUID, email))
		if repUUID == "" {
			repUUID = clientUUID
			repEmail = email
		}

		// Connection URI generation is best effort. A failed read or
		// an unsupported protocol skips this inbound's config only.
		detail, err := panel.GetInbound(ctx, ib.InboundID)
		if err != nil {
			log.Printf("[ProvisionService] GetInbound %d failed, skipping config: %v", ib.InboundID, err)
			continue
		}
		if cfg := vpnconfig.BuildClientURI(clientUUID, host, detail); cfg != nil {
			configs = append(configs, *cfg)
		}
	}

	subscriptionLink := vpnconfig.BuildSubscriptionLink(server.SubscriptionBaseURL, server.SubscriptionPathPrefix, subID)

	// 5. Persist the purchase
	purchase := &models.Purchase{
		ID:               purchaseID,
		UserID:           req.UserID,
		ServerID:         req.ServerID,
		Source:           source,
		ClientUUID:       repUUID,
		ClientEmail:      repEmail,
		SubID:            subID,
		SubscriptionLink: subscriptionLink,
		ConfigsJSON:      marshalConfigs(configs),
		VolumeGB:         req.TotalGB,
		ExpireAt:         expireAtTime(expiryMs),
		IsActive:         true,
	}
	if err := s.purchaseRepo.Create(ctx, purchase); err != nil {
		log.Printf("[ProvisionService] Failed to persist purchase, panel clients remain: %v", created)
		return nil, fmt.Errorf("save purchase: %w", err)
	}

	s.logRepo.LogActionWithMetadata(ctx, purchaseID, "client_provisioned", "active",
		"VPN client created on all inbounds",
		map[string]interface{}{
			"server_id": req.ServerID,
			"clients":   created,
			"sub_id":    subID,
			"volume_gb": req.TotalGB,
		})

	result := &models.ProvisionResult{
		PurchaseID:       purchaseID,
		ClientUUID:       repUUID,
		ClientEmail:      repEmail,
		SubID:            subID,
		SubscriptionLink: subscriptionLink,
		Configs:          configs,
	}

	// 6. Notify the bot gateway. Delivery failure never fails the order.
	s.notifyDelivery(ctx, req.UserID, result)

	log.Printf("[ProvisionService] Provisioned purchase=%s for user=%d on %d inbounds", purchaseID, req.UserID, len(created))
	return result, nil
}

// Deactivate removes the purchase's representative client from every
// inbound of its server and marks the purchase inactive. Panel removal
// is best effort.
func (s *ProvisionService) Deactivate(ctx context.Context, purchaseID string) error {
	purchase, panel, err := s.purchasePanel(ctx, purchaseID)
	if err != nil {
		return err
	}

	inbounds, err := s.serverRepo.GetActiveInbounds(ctx, purchase.ServerID)
	if err != nil {
		return fmt.Errorf("list inbounds for server %d: %w", purchase.ServerID, err)
	}

	for _, ib := range inbounds {
		if err := panel.DeleteClient(ctx, ib.InboundID, purchase.ClientUUID); err != nil {
			log.Printf("[ProvisionService] Warning: failed to delete client from inbound=%d: %v", ib.InboundID, err)
		}
	}

	if err := s.purchaseRepo.Deactivate(ctx, purchaseID); err != nil {
		return fmt.Errorf("deactivate purchase: %w", err)
	}

	s.logRepo.LogAction(ctx, purchaseID, "client_deactivated", "inactive", "client removed from panel inbounds")
	return nil
}

// ResetTraffic zeroes the purchase's traffic counters on every inbound.
func (s *ProvisionService) ResetTraffic(ctx context.Context, purchaseID string) error {
	purchase, panel, err := s.purchasePanel(ctx, purchaseID)
	if err != nil {
		return err
	}

	inbounds, err := s.serverRepo.GetActiveInbounds(ctx, purchase.ServerID)
	if err != nil {
		return fmt.Errorf("list inbounds for server %d: %w", purchase.ServerID, err)
	}

	for _, ib := range inbounds {
		if err := panel.ResetClientTraffic(ctx, ib.InboundID, purchase.ClientEmail); err != nil {
			log.Printf("[ProvisionService] Warning: failed to reset traffic on inbound=%d: %v", ib.InboundID, err)
		}
	}

	s.logRepo.LogAction(ctx, purchaseID, "traffic_reset", "active", "client traffic counters reset")
	return nil
}

// PurchaseIPs returns the panel's recorded connection IPs for the
// purchase's representative client label.
func (s *ProvisionService) PurchaseIPs(ctx context.Context, purchaseID string) (*models.ClientIPsResponse, error) {
	purchase, panel, err := s.purchasePanel(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	ips, err := panel.ClientIPs(ctx, purchase.ClientEmail)
	if err != nil {
		return nil, fmt.Errorf("client ips: %w", err)
	}
	return &models.ClientIPsResponse{Email: purchase.ClientEmail, IPs: ips}, nil
}

// ClearPurchaseIPs clears the panel's IP log for the purchase's
// representative client label.
func (s *ProvisionService) ClearPurchaseIPs(ctx context.Context, purchaseID string) error {
	purchase, panel, err := s.purchasePanel(ctx, purchaseID)
	if err != nil {
		return err
	}

	if err := panel.ClearClientIPs(ctx, purchase.ClientEmail); err != nil {
		return fmt.Errorf("clear client ips: %w", err)
	}
	return nil
}

// purchasePanel resolves a purchase and opens an authenticated session
// against its server's panel.
func (s *ProvisionService) purchasePanel(ctx context.Context, purchaseID string) (*models.Purchase, PanelClient, error) {
	purchase, err := s.purchaseRepo.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, nil, fmt.Errorf("purchase %s: %w", purchaseID, err)
	}

	server, err := s.serverRepo.GetByID(ctx, purchase.ServerID)
	if err != nil {
		return nil, nil, fmt.Errorf("server %d: %w", purchase.ServerID, err)
	}

	panel := s.newPanel(server.PanelURL, server.Username, server.Password, s.cfg.Panel.MaxRetries)
	if err := panel.Login(ctx); err != nil {
		return nil, nil, fmt.Errorf("panel login: %w", err)
	}
	return purchase, panel, nil
}

// GetPurchase returns one purchase as exposed to the front-end
func (s *ProvisionService) GetPurchase(ctx context.Context, purchaseID string) (*models.PurchaseResponse, error) {
	purchase, err := s.purchaseRepo.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	resp := purchaseResponse(purchase)
	return &resp, nil
}

// ListUserPurchases returns a user's purchases, newest first
func (s *ProvisionService) ListUserPurchases(ctx context.Context, userID int64) ([]models.PurchaseResponse, error) {
	purchases, err := s.purchaseRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.PurchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, purchaseResponse(p))
	}
	return out, nil
}

// GetPurchaseLogs returns the fulfillment audit trail for a purchase
func (s *ProvisionService) GetPurchaseLogs(ctx context.Context, purchaseID string, limit int) ([]*models.FulfillmentLog, error) {
	return s.logRepo.GetByPurchaseID(ctx, purchaseID, limit)
}

func purchaseResponse(p *models.Purchase) models.PurchaseResponse {
	resp := models.PurchaseResponse{
		PurchaseID:       p.ID,
		ServerID:         p.ServerID,
		Source:           p.Source,
		ClientEmail:      p.ClientEmail,
		SubscriptionLink: p.SubscriptionLink,
		VolumeGB:         p.VolumeGB,
		IsActive:         p.IsActive,
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
	}
	if p.ExpireAt != nil {
		expire := p.ExpireAt.Format(time.RFC3339)
		resp.ExpireAt = &expire
	}
	if p.ConfigsJSON != "" {
		if err := json.Unmarshal([]byte(p.ConfigsJSON), &resp.Configs); err != nil {
			log.Printf("[ProvisionService] Malformed configs for purchase=%s: %v", p.ID, err)
		}
	}
	return resp
}

func (s *ProvisionService) notifyDelivery(ctx context.Context, userID int64, result *models.ProvisionResult) {
	if s.notifyClient == nil {
		return
	}
	notification := &models.DeliveryNotification{
		UserID:           userID,
		PurchaseID:       result.PurchaseID,
		SubscriptionLink: result.SubscriptionLink,
		Configs:          result.Configs,
	}
	if err := s.notifyClient.NotifyDelivery(ctx, notification); err != nil {
		log.Printf("[ProvisionService] Failed to notify bot-gateway for purchase=%s: %v", result.PurchaseID, err)
	}
}

// quotaBytes converts a gigabyte volume to bytes. Half-gigabyte trial
// packages round to the nearest byte rather than truncating.
func quotaBytes(gb float64) int64 {
	return int64(math.Round(gb * 1024 * 1024 * 1024))
}

// expiryMillis returns the expiry as epoch milliseconds, or 0 for
// unlimited duration.
func expiryMillis(days int) int64 {
	if days <= 0 {
		return 0
	}
	return time.Now().AddDate(0, 0, days).UnixMilli()
}

func expireAtTime(expiryMs int64) *time.Time {
	if expiryMs == 0 {
		return nil
	}
	t := time.UnixMilli(expiryMs)
	return &t
}

const subIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// generateSubID generates a random lowercase alphanumeric identifier
// used in subscription URLs.
func generateSubID(length int) string {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(subIDAlphabet))))
		if err != nil {
			// Fallback keeps provisioning alive if the entropy source fails
			return uuid.New().String()[:length]
		}
		b[i] = subIDAlphabet[n.Int64()]
	}
	return string(b)
}

// generateEmailLabel builds the client label shown in the panel UI,
// unique per order via a random suffix.
func generateEmailLabel(userID, serverID int64) string {
	return fmt.Sprintf("u%d.s%d.%s", userID, serverID, generateSubID(4))
}

func marshalConfigs(configs []models.ClientConfig) string {
	if len(configs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(configs)
	if err != nil {
		log.Printf("[ProvisionService] Failed to marshal configs: %v", err)
		return "[]"
	}
	return string(data)
}
