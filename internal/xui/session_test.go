package xui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panelFixture struct {
	loginCount   int32
	issueCookie  bool
	loginSuccess bool
	handlers     map[string]http.HandlerFunc
	server       *httptest.Server
}

func newPanelFixture() *panelFixture {
	f := &panelFixture{
		issueCookie:  true,
		loginSuccess: true,
		handlers:     make(map[string]http.HandlerFunc),
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			atomic.AddInt32(&f.loginCount, 1)
			if f.issueCookie {
				http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "session-token", Path: "/"})
			}
			writeEnvelope(w, f.loginSuccess, "", nil)
			return
		}
		if h, ok := f.handlers[r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	return f
}

func (f *panelFixture) logins() int {
	return int(atomic.LoadInt32(&f.loginCount))
}

func writeEnvelope(w http.ResponseWriter, success bool, msg string, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"msg":     msg,
		"obj":     obj,
	})
}

func newTestClient(t *testing.T, f *panelFixture, maxRetries int) *Client {
	t.Helper()
	c := NewClient(f.server.URL, "admin", "secret", maxRetries)
	c.backoffUnit = time.Millisecond
	return c
}

func TestLoginStoresSessionCookie(t *testing.T) {
	f := newPanelFixture()
	defer f.server.Close()

	c := newTestClient(t, f, 1)
	require.NoError(t, c.Login(context.Background()))
	assert.True(t, c.hasSessionCookie())
	assert.Equal(t, 1, f.logins())
}

func TestLoginWithoutCookieFails(t *testing.T) {
	f := newPanelFixture()
	defer f.server.Close()
	f.issueCookie = false

	c := newTestClient(t, f, 1)
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session cookie")
	assert.False(t, c.hasSessionCookie())
}

func TestLoginRejectedByPanel(t *testing.T) {
	f := newPanelFixture()
	defer f.server.Close()
	f.loginSuccess = false

	c := newTestClient(t, f, 1)
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected login")
}

func TestExpiredSessionTriggersOneRelogin(t *testing.T) {
	f := newPanelFixture()
	defer f.server.Close()

	var listCalls int32
	f.handlers["/panel/api/inbounds/list"] = func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&listCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeEnvelope(w, true, "", []Inbound{{ID: 1, Remark: "edge"}})
	}

	c := newTestClient(t, f, 1)
	require.NoError(t, c.Login(context.Background()))

	inbounds, err := c.ListInbounds(context.Background())
	require.NoError(t, err)
	require.Len(t, inbounds, 1)
	assert.Equal(t, "edge", inbounds[0].Remark)
	assert.Equal(t, int32(2), atomic.LoadInt32(&listCalls))
	assert.Equal(t, 2, f.logins())
}

func TestSecondAuthRejectionIsTerminal(t *testing.T) {
	f := newPanelFixture()
	defer f.server.Close()

	f.handlers["/panel/api/inbounds/list"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}

	c := newTestClient(t, f, 1)
	require.NoError(t, c.Login(context.Background()))

	_, err := c.ListInbounds(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session rejected again after re-login")
	// initial login plus exactly one re-login, no further attempts
	assert.Equal(t, 2, f.logins())
}

func TestTransientErrorBackoffSequence(t *testing.T) {
	f := newPanelFixture()

	c := newTestClient(t, f, 3)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	require.NoError(t, c.Login(context.Background()))

	// connection refused after shutdown counts as transient
	f.server.Close()

	_, err := c.ListInbounds(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 retries")
	assert.Equal(t, []time.Duration{
		1 * time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}, slept)
}

func TestPanelRejectionSurfacesAsPanelError(t *testing.T) {
	f := newPanelFixture()
	defer f.server.Close()

	var listCalls int32
	f.handlers["/panel/api/inbounds/list"] = func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listCalls, 1)
		writeEnvelope(w, false, "database locked", nil)
	}

	c := newTestClient(t, f, 3)
	require.NoError(t, c.Login(context.Background()))

	_, err := c.ListInbounds(context.Background())
	require.Error(t, err)

	var panelErr *PanelError
	require.ErrorAs(t, err, &panelErr)
	assert.Equal(t, "database locked", panelErr.Msg)
	// business rejections are never retried
	assert.Equal(t, int32(1), atomic.LoadInt32(&listCalls))
}

func TestAddClientEncodesSettingsBlob(t *testing.T) {
	f := newPanelFixture()
	defer f.server.Close()

	var got addClientRequest
	f.handlers["/panel/api/inbounds/addClient"] = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, true, "", nil)
	}

	c := newTestClient(t, f, 1)
	require.NoError(t, c.Login(context.Background()))

	err := c.AddClient(context.Background(), 4, ClientSetting{
		ID:         "11111111-2222-3333-4444-555555555555",
		Email:      "u7.s1.ab3f",
		TotalGB:    1073741824,
		ExpiryTime: 1700000000000,
		Enable:     true,
		SubID:      "abcdef123456",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, got.ID)

	var settings clientsSettings
	require.NoError(t, json.Unmarshal([]byte(got.Settings), &settings))
	require.Len(t, settings.Clients, 1)
	assert.Equal(t, "u7.s1.ab3f", settings.Clients[0].Email)
	assert.Equal(t, int64(1073741824), settings.Clients[0].TotalGB)
	assert.Equal(t, "abcdef123456", settings.Clients[0].SubID)
}

func TestOnlineClientsDecodesLabels(t *testing.T) {
	f := newPanelFixture()
	defer f.server.Close()

	f.handlers["/panel/api/inbounds/onlines"] = func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, true, "", []string{"u7.s1.ab3f", "u9.s1.x2k8"})
	}

	c := newTestClient(t, f, 1)
	require.NoError(t, c.Login(context.Background()))

	emails, err := c.OnlineClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u7.s1.ab3f", "u9.s1.x2k8"}, emails)
}

func TestCallWithoutSessionLogsInFirst(t *testing.T) {
	f := newPanelFixture()
	defer f.server.Close()

	f.handlers["/panel/api/inbounds/list"] = func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, true, "", []Inbound{})
	}

	c := newTestClient(t, f, 1)
	_, err := c.ListInbounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.logins())
}
