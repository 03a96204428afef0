// Package vpnconfig translates panel inbound configurations into
// client-usable connection URIs and subscription links.
package vpnconfig

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/alamor-network/vpn-fulfillment-service/internal/models"
	"github.com/alamor-network/vpn-fulfillment-service/internal/xui"
)

type streamSettings struct {
	Network      string       `json:"network"`
	Security     string       `json:"security"`
	WSSettings   wsSettings   `json:"wsSettings"`
	GRPCSettings grpcSettings `json:"grpcSettings"`
	TLSSettings  tlsSettings  `json:"tlsSettings"`
	XTLSSettings xtlsSettings `json:"xtlsSettings"`
}

type wsSettings struct {
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
}

type grpcSettings struct {
	ServiceName string `json:"serviceName"`
}

// tlsSettings also carries the reality key pair; the panel stores pbk/sid in
// the same block.
type tlsSettings struct {
	ServerName  string `json:"serverName"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"publicKey"`
	ShortID     string `json:"shortId"`
}

type xtlsSettings struct {
	Flow string `json:"flow"`
}

// BuildClientURI renders the connection URI for one provisioned client on one
// inbound. It returns nil when no single-config entry can be produced — an
// unrecognized protocol or a malformed transport blob — and callers are
// expected to skip the inbound, not abort.
func BuildClientURI(clientUUID, address string, inbound *xui.Inbound) *models.ClientConfig {
	if inbound.Protocol != "vless" {
		return nil
	}

	network := "tcp"
	security := "none"
	var ss streamSettings
	if raw := strings.TrimSpace(inbound.StreamSettings); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ss); err != nil {
			log.Printf("[vpnconfig] inbound %d: malformed stream settings: %v", inbound.ID, err)
			return nil
		}
		if ss.Network != "" {
			network = ss.Network
		}
		if ss.Security != "" {
			security = ss.Security
		}
	}

	params := url.Values{}
	params.Set("type", network)
	params.Set("security", security)

	if security == "xtls" {
		flow := ss.XTLSSettings.Flow
		if flow == "" {
			flow = "xtls-rprx-direct"
		}
		params.Set("flow", flow)
	}

	switch network {
	case "ws":
		path := ss.WSSettings.Path
		if path == "" {
			path = "/"
		}
		host := ss.WSSettings.Headers["Host"]
		if host == "" {
			host = address
		}
		params.Set("path", path)
		params.Set("host", host)
	case "grpc":
		if ss.GRPCSettings.ServiceName != "" {
			params.Set("serviceName", ss.GRPCSettings.ServiceName)
		}
	}

	switch security {
	case "tls", "xtls", "reality":
		sni := ss.TLSSettings.ServerName
		if sni == "" {
			sni = address
		}
		params.Set("sni", sni)
		if ss.TLSSettings.Fingerprint != "" {
			params.Set("fp", ss.TLSSettings.Fingerprint)
		}
		if security == "reality" {
			if ss.TLSSettings.PublicKey != "" {
				params.Set("pbk", ss.TLSSettings.PublicKey)
			}
			if ss.TLSSettings.ShortID != "" {
				params.Set("sid", ss.TLSSettings.ShortID)
			}
		}
	}

	// The fragment must be percent-encoded; QueryEscape would render spaces
	// as "+" and clients show that literally in the remark.
	uri := fmt.Sprintf("vless://%s@%s:%d?%s#%s",
		clientUUID, address, inbound.Port, params.Encode(), url.PathEscape(inbound.Remark))

	return &models.ClientConfig{
		Remark:   inbound.Remark,
		Protocol: inbound.Protocol,
		Network:  network,
		URL:      uri,
	}
}

// BuildSubscriptionLink joins the server's subscription base, path prefix and
// the order's subscription identifier with exactly one slash at each seam.
func BuildSubscriptionLink(base, prefix, subID string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Trim(prefix, "/") + "/" + subID
}

// HostFromURL extracts the bare host from a subscription base URL, dropping
// scheme, port and path. Used as the connect address in client URIs.
func HostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return ""
		}
	}
	return u.Hostname()
}
