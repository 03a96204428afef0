package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alamor-network/vpn-fulfillment-service/internal/config"
)

func newServerFixture() (*ServerService, *fixture) {
	f := newFixture()
	cfg := &config.Config{Panel: config.PanelConfig{MaxRetries: 1}}
	svc := NewServerService(cfg, f.servers, func(_, _, _ string, _ int) PanelClient { return f.panel })
	return svc, f
}

func TestCheckServerRecordsOnline(t *testing.T) {
	svc, f := newServerFixture()

	resp, err := svc.CheckServer(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, resp.Online)
	assert.Equal(t, []bool{true}, f.servers.statuses)
}

func TestCheckServerRecordsOffline(t *testing.T) {
	svc, f := newServerFixture()
	f.panel.loginErr = errors.New("connection refused")

	resp, err := svc.CheckServer(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, resp.Online)
	assert.Equal(t, []bool{false}, f.servers.statuses)
}

func TestListPanelInbounds(t *testing.T) {
	svc, _ := newServerFixture()

	inbounds, err := svc.ListPanelInbounds(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, inbounds, 3)
	for _, ib := range inbounds {
		assert.Equal(t, "vless", ib.Protocol)
	}
}

func TestListServersIncludesStatus(t *testing.T) {
	svc, f := newServerFixture()
	f.servers.server.IsOnline = true

	servers, err := svc.ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "frankfurt-1", servers[0].Name)
	assert.True(t, servers[0].IsOnline)
	assert.Nil(t, servers[0].LastChecked)
}
