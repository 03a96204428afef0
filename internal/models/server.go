package models

import (
	"time"
)

// Server is a managed x-ui panel host. Panel credentials are only ever used
// server-side to open provisioning sessions; they are never returned to the
// front-end.
type Server struct {
	ID                     int64
	Name                   string
	PanelURL               string
	Username               string
	Password               string
	SubscriptionBaseURL    string
	SubscriptionPathPrefix string
	IsActive               bool
	IsOnline               bool
	LastChecked            *time.Time
}

// ServerInbound is one entry of the curated inbound selection for a server.
// The selection is maintained by the admin front-end; provisioning only reads it.
type ServerInbound struct {
	ID        int64
	ServerID  int64
	InboundID int
	Remark    string
	IsActive  bool
}

// FulfillmentLog represents an operation log entry for one purchase
type FulfillmentLog struct {
	ID         string
	PurchaseID string
	Action     string
	Status     string
	Message    string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
}
