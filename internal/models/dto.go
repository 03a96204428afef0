package models

// ==================== Internal API DTOs ====================

// ProvisionRequest is sent by the bot front-end once an order has been paid
type ProvisionRequest struct {
	UserID       int64   `json:"user_id" binding:"required"`
	ServerID     int64   `json:"server_id" binding:"required"`
	TotalGB      float64 `json:"total_gb"`
	DurationDays int     `json:"duration_days"` // 0 or absent = unlimited
}

// TrialRequest activates the free test account for a user
type TrialRequest struct {
	UserID   int64 `json:"user_id" binding:"required"`
	ServerID int64 `json:"server_id" binding:"required"`
}

// ClientConfig is one protocol-specific connection URI produced for an inbound
type ClientConfig struct {
	Remark   string `json:"remark"`
	Protocol string `json:"protocol"`
	Network  string `json:"network"`
	URL      string `json:"url"`
}

// ProvisionResult is the deliverable artifact set for one fulfilled order
type ProvisionResult struct {
	PurchaseID       string         `json:"purchase_id"`
	ClientUUID       string         `json:"client_uuid"`
	ClientEmail      string         `json:"client_email"`
	SubID            string         `json:"subscription_id"`
	SubscriptionLink string         `json:"subscription_link"`
	Configs          []ClientConfig `json:"configs"`
}

// PurchaseResponse is the purchase record as exposed to the front-end
type PurchaseResponse struct {
	PurchaseID       string         `json:"purchase_id"`
	ServerID         int64          `json:"server_id"`
	Source           string         `json:"source"`
	ClientEmail      string         `json:"client_email"`
	SubscriptionLink string         `json:"subscription_link"`
	Configs          []ClientConfig `json:"configs"`
	VolumeGB         float64        `json:"volume_gb"`
	ExpireAt         *string        `json:"expire_at,omitempty"`
	IsActive         bool           `json:"is_active"`
	CreatedAt        string         `json:"created_at"`
}

// ServerStatusResponse is the server list entry (panel credentials excluded)
type ServerStatusResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	IsActive    bool    `json:"is_active"`
	IsOnline    bool    `json:"is_online"`
	LastChecked *string `json:"last_checked,omitempty"`
}

// InboundInfo summarizes one panel inbound for the admin selection flow
type InboundInfo struct {
	ID       int    `json:"id"`
	Remark   string `json:"remark"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Enable   bool   `json:"enable"`
}

// CheckServerResponse reports the result of a panel login probe
type CheckServerResponse struct {
	ServerID  int64  `json:"server_id"`
	Online    bool   `json:"online"`
	CheckedAt string `json:"checked_at"`
}

// OnlineClientsResponse lists client labels currently online on a server
type OnlineClientsResponse struct {
	ServerID int64    `json:"server_id"`
	Emails   []string `json:"emails"`
}

// ClientIPsResponse carries the panel's recorded IP log for one client
type ClientIPsResponse struct {
	Email string `json:"email"`
	IPs   string `json:"ips"`
}

// ==================== Front-end delivery DTOs ====================

// DeliveryNotification is posted to the bot gateway after fulfillment so the
// customer receives their subscription link
type DeliveryNotification struct {
	UserID           int64          `json:"user_id"`
	PurchaseID       string         `json:"purchase_id"`
	SubscriptionLink string         `json:"subscription_link"`
	Configs          []ClientConfig `json:"configs"`
}
