package xui

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// sessionCookieName is the cookie the panel issues on a successful login.
// Every authenticated endpoint expects it back.
const sessionCookieName = "3x-ui"

const (
	defaultMaxRetries  = 3
	defaultBackoffUnit = time.Second

	// listTimeout covers list/get/add calls; actionTimeout covers login and
	// the non-idempotent reset/delete endpoints.
	listTimeout   = 15 * time.Second
	actionTimeout = 10 * time.Second
)

// errSessionExpired marks a 401/403 from the panel, meaning the session cookie
// is stale and a re-login is required.
var errSessionExpired = errors.New("xui: session expired")

// Client holds one authenticated session against one panel instance. It is not
// safe for concurrent use; each provisioning call constructs its own Client.
type Client struct {
	panelURL  string
	username  string
	password  string
	twoFactor string

	maxRetries  int
	backoffUnit time.Duration
	sleep       func(time.Duration)

	jar        http.CookieJar
	httpClient *http.Client
}

// NewClient creates a client for the panel at panelURL. maxRetries bounds the
// transient-failure retry budget; values <= 0 fall back to the default.
func NewClient(panelURL, username, password string, maxRetries int) *Client {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		panelURL:    strings.TrimRight(panelURL, "/"),
		username:    username,
		password:    password,
		maxRetries:  maxRetries,
		backoffUnit: defaultBackoffUnit,
		sleep:       time.Sleep,
		jar:         jar,
		httpClient: &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				// panels commonly run on self-signed certificates
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// SetTwoFactor sets the optional two-factor code sent with the login request.
func (c *Client) SetTwoFactor(code string) {
	c.twoFactor = code
}

// Login posts the panel credentials and verifies that a session cookie was
// actually issued. A "successful" login without the cookie is treated as a
// failure: proceeding would leave every later call silently unauthenticated.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{
		Username:  c.username,
		Password:  c.password,
		TwoFactor: c.twoFactor,
	})
	if err != nil {
		return fmt.Errorf("marshal login request: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodPost, c.panelURL+"/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("panel rejected login: %s", env.Msg)
	}
	if !c.hasSessionCookie() {
		log.Printf("[xui] login to %s reported success but no %q cookie was issued", c.panelURL, sessionCookieName)
		return fmt.Errorf("login succeeded without %s session cookie", sessionCookieName)
	}

	log.Printf("[xui] logged in to %s", c.panelURL)
	return nil
}

// ensureSession is a no-op while a session cookie is held, otherwise logs in.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.hasSessionCookie() {
		return nil
	}
	return c.Login(ctx)
}

func (c *Client) hasSessionCookie() bool {
	u, err := url.Parse(c.panelURL)
	if err != nil {
		return false
	}
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == sessionCookieName && ck.Value != "" {
			return true
		}
	}
	return false
}

func (c *Client) clearSession() {
	jar, _ := cookiejar.New(nil)
	c.jar = jar
	c.httpClient.Jar = jar
}

// execute performs one panel call under the current session and returns the
// envelope's obj payload. Failure handling, as one bounded loop:
//   - 401/403: drop the session, re-login once and retry the original call
//     once; a second consecutive auth rejection is terminal.
//   - timeout or connection error: exponential backoff (2^attempt backoff
//     units) up to maxRetries, then terminal.
//   - any other transport or decode error, or a panel-side rejection: terminal.
func (c *Client) execute(ctx context.Context, method, endpoint string, payload any, timeout time.Duration) (json.RawMessage, error) {
	authRetried := false
	for attempt := 0; ; {
		obj, err := c.do(ctx, method, endpoint, payload, timeout)
		if err == nil {
			return obj, nil
		}

		switch {
		case errors.Is(err, errSessionExpired):
			if authRetried {
				return nil, fmt.Errorf("%s %s: session rejected again after re-login", method, endpoint)
			}
			authRetried = true
			log.Printf("[xui] %s %s: authentication error, re-logging in", method, endpoint)
			c.clearSession()
			if err := c.Login(ctx); err != nil {
				return nil, fmt.Errorf("re-login: %w", err)
			}

		case isTransient(err):
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%s %s: giving up after %d retries: %w", method, endpoint, c.maxRetries, err)
			}
			delay := c.backoffUnit << attempt
			log.Printf("[xui] %s %s: transient error (%v), retrying in %s (%d/%d)", method, endpoint, err, delay, attempt+1, c.maxRetries)
			c.sleep(delay)
			attempt++

		default:
			return nil, err
		}
	}
}

// do performs a single request/response cycle without any retry logic.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any, timeout time.Duration) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, method, c.panelURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errSessionExpired
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("panel returned status %d: %s", resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	if !env.Success {
		log.Printf("[xui] %s rejected: %s", endpoint, env.Msg)
		return nil, &PanelError{Endpoint: endpoint, Msg: env.Msg}
	}
	return env.Obj, nil
}

// isTransient reports whether err is a timeout or connection-level failure
// worth retrying with backoff.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
