package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alamor-network/vpn-fulfillment-service/internal/models"
)

// NotifyClient handles communication with the bot gateway, which relays
// delivery messages to end users.
type NotifyClient struct {
	baseURL     string
	internalKey string
	httpClient  *http.Client
}

// NewNotifyClient creates a new bot gateway client
func NewNotifyClient(baseURL, internalKey string) *NotifyClient {
	return &NotifyClient{
		baseURL:     baseURL,
		internalKey: internalKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NotifyDelivery sends the purchase delivery payload to the bot gateway
func (c *NotifyClient) NotifyDelivery(ctx context.Context, notification *models.DeliveryNotification) error {
	url := fmt.Sprintf("%s/api/internal/notify/delivery", c.baseURL)

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", c.internalKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("bot-gateway returned status %d", resp.StatusCode)
	}

	return nil
}
