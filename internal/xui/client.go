package xui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Typed wrappers over the panel's inbound/client resource endpoints. Every
// wrapper ensures a session exists before issuing the call; panel-side
// business rejections come back as *PanelError values rather than zero
// results, so callers can tell "failed" apart from "empty".

// ListInbounds returns every inbound configured on the panel.
func (c *Client) ListInbounds(ctx context.Context) ([]Inbound, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, fmt.Errorf("not authenticated: %w", err)
	}
	obj, err := c.execute(ctx, http.MethodGet, "/panel/api/inbounds/list", nil, listTimeout)
	if err != nil {
		return nil, err
	}
	var inbounds []Inbound
	if err := json.Unmarshal(obj, &inbounds); err != nil {
		return nil, fmt.Errorf("decode inbound list: %w", err)
	}
	return inbounds, nil
}

// GetInbound fetches one inbound's full detail, including its live transport
// and security settings.
func (c *Client) GetInbound(ctx context.Context, inboundID int) (*Inbound, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, fmt.Errorf("not authenticated: %w", err)
	}
	obj, err := c.execute(ctx, http.MethodGet, fmt.Sprintf("/panel/api/inbounds/get/%d", inboundID), nil, listTimeout)
	if err != nil {
		return nil, err
	}
	var inbound Inbound
	if err := json.Unmarshal(obj, &inbound); err != nil {
		return nil, fmt.Errorf("decode inbound %d: %w", inboundID, err)
	}
	return &inbound, nil
}

// AddInbound creates a new inbound and returns the panel's stored record.
func (c *Client) AddInbound(ctx context.Context, inbound *Inbound) (*Inbound, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, fmt.Errorf("not authenticated: %w", err)
	}
	obj, err := c.execute(ctx, http.MethodPost, "/panel/api/inbounds/add", inbound, listTimeout)
	if err != nil {
		return nil, err
	}
	var created Inbound
	if err := json.Unmarshal(obj, &created); err != nil {
		return nil, fmt.Errorf("decode added inbound: %w", err)
	}
	return &created, nil
}

// UpdateInbound replaces the configuration of an existing inbound.
func (c *Client) UpdateInbound(ctx context.Context, inboundID int, inbound *Inbound) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	_, err := c.execute(ctx, http.MethodPost, fmt.Sprintf("/panel/api/inbounds/update/%d", inboundID), inbound, listTimeout)
	return err
}

// DeleteInbound removes an inbound and all of its clients.
func (c *Client) DeleteInbound(ctx context.Context, inboundID int) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	_, err := c.execute(ctx, http.MethodPost, fmt.Sprintf("/panel/api/inbounds/del/%d", inboundID), nil, actionTimeout)
	return err
}

// AddClient creates one client credential on the given inbound.
func (c *Client) AddClient(ctx context.Context, inboundID int, client ClientSetting) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	settings, err := marshalClients(client)
	if err != nil {
		return err
	}
	payload := addClientRequest{ID: inboundID, Settings: settings}
	_, err = c.execute(ctx, http.MethodPost, "/panel/api/inbounds/addClient", payload, listTimeout)
	return err
}

// UpdateClient rewrites the settings of the client identified by clientUUID.
func (c *Client) UpdateClient(ctx context.Context, clientUUID string, inboundID int, client ClientSetting) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	settings, err := marshalClients(client)
	if err != nil {
		return err
	}
	payload := addClientRequest{ID: inboundID, Settings: settings}
	_, err = c.execute(ctx, http.MethodPost, "/panel/api/inbounds/updateClient/"+url.PathEscape(clientUUID), payload, listTimeout)
	return err
}

// DeleteClient removes one client credential from an inbound.
func (c *Client) DeleteClient(ctx context.Context, inboundID int, clientUUID string) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	endpoint := fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", inboundID, url.PathEscape(clientUUID))
	_, err := c.execute(ctx, http.MethodPost, endpoint, nil, actionTimeout)
	return err
}

// ResetClientTraffic zeroes the traffic counters of one client, addressed by
// its email label.
func (c *Client) ResetClientTraffic(ctx context.Context, inboundID int, email string) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	endpoint := fmt.Sprintf("/panel/api/inbounds/%d/resetClientTraffic/%s", inboundID, url.PathEscape(email))
	_, err := c.execute(ctx, http.MethodPost, endpoint, nil, actionTimeout)
	return err
}

// ResetAllTraffics zeroes the traffic counters of every inbound on the server.
func (c *Client) ResetAllTraffics(ctx context.Context) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	_, err := c.execute(ctx, http.MethodPost, "/panel/api/inbounds/resetAllTraffics", nil, actionTimeout)
	return err
}

// ResetAllClientTraffics zeroes the traffic counters of every client on one
// inbound.
func (c *Client) ResetAllClientTraffics(ctx context.Context, inboundID int) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	_, err := c.execute(ctx, http.MethodPost, fmt.Sprintf("/panel/api/inbounds/resetAllClientTraffics/%d", inboundID), nil, actionTimeout)
	return err
}

// DeleteDepletedClients purges clients whose quota or expiry is exhausted on
// one inbound.
func (c *Client) DeleteDepletedClients(ctx context.Context, inboundID int) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	_, err := c.execute(ctx, http.MethodPost, fmt.Sprintf("/panel/api/inbounds/delDepletedClients/%d", inboundID), nil, actionTimeout)
	return err
}

// ClientIPs returns the panel's recorded IP log for one client label.
func (c *Client) ClientIPs(ctx context.Context, email string) (string, error) {
	if err := c.ensureSession(ctx); err != nil {
		return "", fmt.Errorf("not authenticated: %w", err)
	}
	obj, err := c.execute(ctx, http.MethodPost, "/panel/api/inbounds/clientIps/"+url.PathEscape(email), nil, actionTimeout)
	if err != nil {
		return "", err
	}
	var ips string
	if err := json.Unmarshal(obj, &ips); err != nil {
		return string(obj), nil
	}
	return ips, nil
}

// ClearClientIPs clears the recorded IP log for one client label.
func (c *Client) ClearClientIPs(ctx context.Context, email string) error {
	if err := c.ensureSession(ctx); err != nil {
		return fmt.Errorf("not authenticated: %w", err)
	}
	_, err := c.execute(ctx, http.MethodPost, "/panel/api/inbounds/clearClientIps/"+url.PathEscape(email), nil, actionTimeout)
	return err
}

// OnlineClients returns the labels of clients with an active connection.
func (c *Client) OnlineClients(ctx context.Context) ([]string, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, fmt.Errorf("not authenticated: %w", err)
	}
	obj, err := c.execute(ctx, http.MethodPost, "/panel/api/inbounds/onlines", nil, actionTimeout)
	if err != nil {
		return nil, err
	}
	var emails []string
	if err := json.Unmarshal(obj, &emails); err != nil {
		return nil, fmt.Errorf("decode online clients: %w", err)
	}
	return emails, nil
}
