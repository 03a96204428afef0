package models

import (
	"time"
)

// Purchase source constants
const (
	SourcePurchase = "purchase"
	SourceTrial    = "trial"
)

// Purchase is the persisted record of one fulfilled order: the representative
// client credential plus the deliverable subscription artifacts. One purchase
// maps to N panel clients (one per configured inbound), all sharing SubID.
type Purchase struct {
	ID               string
	UserID           int64
	ServerID         int64
	Source           string
	ClientUUID       string
	ClientEmail      string
	SubID            string
	SubscriptionLink string
	ConfigsJSON      string
	VolumeGB         float64
	ExpireAt         *time.Time
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
