// Package authclient is the Go client of the identity service. It keeps one
// session, attaches its access token to outgoing calls, and transparently
// rotates the token when the service answers 401.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	AudienceUser  = "user"
	AudienceAdmin = "admin"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxRetryWait   = 30 * time.Second
	defaultTimeout        = 15 * time.Second
)

// Config configures a Client. Only BaseURL is required.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	TokenStore TokenStore
	// LoginPaths maps an audience to the login surface a user is sent to
	// when the session ends. Defaults to "/login" and "/admin/login".
	LoginPaths map[string]string
	// OnSessionEnd is called once per failed refresh, after credentials are
	// cleared.
	OnSessionEnd func(audience, loginURL string)
	// MaxAttempts bounds transport retries of a single call.
	MaxAttempts    uint
	InitialBackoff time.Duration
	// MaxRetryWait is the longest Retry-After the client will sleep through.
	// Longer hints end the retry loop and return the response.
	MaxRetryWait time.Duration
	Logger       zerolog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL        string
	http           *http.Client
	store          TokenStore
	loginPaths     map[string]string
	onSessionEnd   func(audience, loginURL string)
	maxAttempts    uint
	initialBackoff time.Duration
	maxRetryWait   time.Duration
	log            zerolog.Logger

	flights singleflight.Group
}

type endpoints struct {
	login, refresh, logout string
}

var audienceEndpoints = map[string]endpoints{
	AudienceUser:  {login: "/auth/login", refresh: "/auth/refresh", logout: "/auth/logout"},
	AudienceAdmin: {login: "/admin/auth/login", refresh: "/admin/auth/refresh", logout: "/admin/auth/logout"},
}

// authPaths never trigger a refresh on 401: for them a 401 is the answer.
var authPaths = map[string]bool{
	"/auth/register":      true,
	"/auth/login":         true,
	"/auth/refresh":       true,
	"/auth/logout":        true,
	"/admin/auth/login":   true,
	"/admin/auth/refresh": true,
	"/admin/auth/logout":  true,
}

func New(cfg Config) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		http:           cfg.HTTPClient,
		store:          cfg.TokenStore,
		loginPaths:     map[string]string{AudienceUser: "/login", AudienceAdmin: "/admin/login"},
		onSessionEnd:   cfg.OnSessionEnd,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxRetryWait:   cfg.MaxRetryWait,
		log:            cfg.Logger.With().Str("component", "authclient").Logger(),
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.store == nil {
		c.store = NewMemoryTokenStore()
	}
	for audience, path := range cfg.LoginPaths {
		c.loginPaths[audience] = path
	}
	if c.maxAttempts == 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = defaultInitialBackoff
	}
	if c.maxRetryWait <= 0 {
		c.maxRetryWait = defaultMaxRetryWait
	}
	return c
}

// Credentials returns the current session, if any.
func (c *Client) Credentials() (Credentials, bool) {
	return c.store.Load()
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	All          bool   `json:"all,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login authenticates against the given audience ("user" when empty) and
// stores the issued tokens. Rejections come back as *APIError.
func (c *Client) Login(ctx context.Context, email, password, audience string) error {
	if audience == "" {
		audience = AudienceUser
	}
	ep, ok := audienceEndpoints[audience]
	if !ok {
		return fmt.Errorf("authclient: unknown audience %q", audience)
	}

	var out tokenResponse
	if err := c.postJSON(ctx, ep.login, "", loginRequest{Email: email, Password: password}, &out, c.maxAttempts); err != nil {
		return err
	}
	c.store.Save(Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken, Audience: audience})
	c.log.Debug().Str("audience", audience).Msg("logged in")
	return nil
}

// Logout revokes the current refresh token. Local credentials are cleared
// whatever the service answers.
func (c *Client) Logout(ctx context.Context) error {
	return c.logout(ctx, false)
}

// LogoutAll revokes every session of the principal.
func (c *Client) LogoutAll(ctx context.Context) error {
	return c.logout(ctx, true)
}

func (c *Client) logout(ctx context.Context, all bool) error {
	creds, ok := c.store.Load()
	if !ok {
		return ErrNotAuthenticated
	}
	defer c.store.Clear()

	body := logoutRequest{All: all}
	if !all {
		body.RefreshToken = creds.RefreshToken
	}
	err := c.postJSON(ctx, audienceEndpoints[creds.Audience].logout, creds.AccessToken, body, nil, c.maxAttempts)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		// The session is already gone server side.
		return nil
	}
	return err
}

// NewRequest builds a request against BaseURL. body, when non-nil, is
// encoded as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("authclient: encode body: %w", err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, in, out any, tries uint) error {
	req, err := c.NewRequest(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	body, err := readBody(req)
	if err != nil {
		return err
	}
	resp, err := c.send(req, body, token, tries)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("authclient: decode %s: %w", path, err)
	}
	return nil
}
