package vpnconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alamor-network/vpn-fulfillment-service/internal/xui"
)

func TestBuildClientURIWebsocket(t *testing.T) {
	inbound := &xui.Inbound{
		ID:             1,
		Port:           443,
		Protocol:       "vless",
		Remark:         "My Server",
		StreamSettings: `{"network":"ws","security":"none","wsSettings":{"path":"/ws"}}`,
	}

	cfg := BuildClientURI("abc-123", "1.2.3.4", inbound)
	require.NotNil(t, cfg)
	assert.Equal(t, "My Server", cfg.Remark)
	assert.Equal(t, "vless", cfg.Protocol)
	assert.Equal(t, "ws", cfg.Network)
	assert.Equal(t, "vless://abc-123@1.2.3.4:443?host=1.2.3.4&path=%2Fws&security=none&type=ws#My%20Server", cfg.URL)
}

func TestBuildClientURIDefaultsToTCPNone(t *testing.T) {
	inbound := &xui.Inbound{
		Port:     8443,
		Protocol: "vless",
		Remark:   "plain",
	}

	cfg := BuildClientURI("abc", "vpn.example.com", inbound)
	require.NotNil(t, cfg)
	assert.Equal(t, "tcp", cfg.Network)
	assert.Equal(t, "vless://abc@vpn.example.com:8443?security=none&type=tcp#plain", cfg.URL)
}

func TestBuildClientURIWebsocketHostHeader(t *testing.T) {
	inbound := &xui.Inbound{
		Port:           443,
		Protocol:       "vless",
		Remark:         "cdn",
		StreamSettings: `{"network":"ws","security":"none","wsSettings":{"path":"/tunnel","headers":{"Host":"front.example.org"}}}`,
	}

	cfg := BuildClientURI("abc", "1.2.3.4", inbound)
	require.NotNil(t, cfg)
	assert.Contains(t, cfg.URL, "host=front.example.org")
	assert.Contains(t, cfg.URL, "path=%2Ftunnel")
}

func TestBuildClientURIReality(t *testing.T) {
	inbound := &xui.Inbound{
		Port:     443,
		Protocol: "vless",
		Remark:   "re",
		StreamSettings: `{"network":"grpc","security":"reality",` +
			`"grpcSettings":{"serviceName":"svc"},` +
			`"tlsSettings":{"serverName":"cdn.net","fingerprint":"chrome","publicKey":"PBK","shortId":"0ab1"}}`,
	}

	cfg := BuildClientURI("abc", "1.2.3.4", inbound)
	require.NotNil(t, cfg)
	assert.Equal(t, "grpc", cfg.Network)
	assert.Contains(t, cfg.URL, "security=reality")
	assert.Contains(t, cfg.URL, "serviceName=svc")
	assert.Contains(t, cfg.URL, "sni=cdn.net")
	assert.Contains(t, cfg.URL, "fp=chrome")
	assert.Contains(t, cfg.URL, "pbk=PBK")
	assert.Contains(t, cfg.URL, "sid=0ab1")
}

func TestBuildClientURIXTLSFlowDefault(t *testing.T) {
	inbound := &xui.Inbound{
		Port:           443,
		Protocol:       "vless",
		Remark:         "x",
		StreamSettings: `{"network":"tcp","security":"xtls"}`,
	}

	cfg := BuildClientURI("abc", "1.2.3.4", inbound)
	require.NotNil(t, cfg)
	assert.Contains(t, cfg.URL, "flow=xtls-rprx-direct")
	// xtls without an explicit serverName falls back to the address
	assert.Contains(t, cfg.URL, "sni=1.2.3.4")
}

func TestBuildClientURISkipsUnsupportedProtocol(t *testing.T) {
	inbound := &xui.Inbound{Port: 443, Protocol: "trojan", Remark: "nope"}
	assert.Nil(t, BuildClientURI("abc", "1.2.3.4", inbound))
}

func TestBuildClientURISkipsMalformedStreamSettings(t *testing.T) {
	inbound := &xui.Inbound{
		Port:           443,
		Protocol:       "vless",
		Remark:         "broken",
		StreamSettings: `{"network":`,
	}
	assert.Nil(t, BuildClientURI("abc", "1.2.3.4", inbound))
}

func TestBuildSubscriptionLink(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/sub/xYz12345abcd",
		BuildSubscriptionLink("https://cdn.example.com/", "/sub/", "xYz12345abcd"))
	assert.Equal(t, "https://cdn.example.com/sub/xYz12345abcd",
		BuildSubscriptionLink("https://cdn.example.com", "sub", "xYz12345abcd"))
}

func TestHostFromURL(t *testing.T) {
	assert.Equal(t, "vpn.example.com", HostFromURL("https://vpn.example.com:2053/panel"))
	assert.Equal(t, "vpn.example.com", HostFromURL("vpn.example.com"))
	assert.Equal(t, "1.2.3.4", HostFromURL("http://1.2.3.4:8080"))
}
