package xui

import (
	"encoding/json"
	"fmt"
)

// envelope is the uniform response wrapper every panel endpoint returns
type envelope struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// PanelError is a business rejection reported by the panel itself ("inbound
// not found", "duplicate email", ...). It is distinct from transport and
// authentication failures, which surface as plain wrapped errors.
type PanelError struct {
	Endpoint string
	Msg      string
}

func (e *PanelError) Error() string {
	return fmt.Sprintf("panel rejected %s: %s", e.Endpoint, e.Msg)
}

// Inbound is the panel's inbound listener record. Settings and StreamSettings
// are JSON blobs the panel stores as strings.
type Inbound struct {
	ID             int    `json:"id"`
	Up             int64  `json:"up"`
	Down           int64  `json:"down"`
	Total          int64  `json:"total"`
	Remark         string `json:"remark"`
	Enable         bool   `json:"enable"`
	ExpiryTime     int64  `json:"expiryTime"`
	Listen         string `json:"listen"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Settings       string `json:"settings"`
	StreamSettings string `json:"streamSettings"`
	Tag            string `json:"tag"`
	Sniffing       string `json:"sniffing"`
}

// ClientSetting is one client credential as the panel stores it. TotalGB is
// despite its name a byte count; ExpiryTime is epoch milliseconds, 0 meaning
// unlimited.
type ClientSetting struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Flow       string `json:"flow"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	TgID       string `json:"tgId"`
	SubID      string `json:"subId"`
}

// addClientRequest is the addClient/updateClient payload: the inbound id plus
// a JSON-encoded {"clients":[...]} settings string, as the panel expects.
type addClientRequest struct {
	ID       int    `json:"id"`
	Settings string `json:"settings"`
}

type clientsSettings struct {
	Clients []ClientSetting `json:"clients"`
}

func marshalClients(clients ...ClientSetting) (string, error) {
	b, err := json.Marshal(clientsSettings{Clients: clients})
	if err != nil {
		return "", fmt.Errorf("marshal client settings: %w", err)
	}
	return string(b), nil
}

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TwoFactor string `json:"twoFactor,omitempty"`
}
