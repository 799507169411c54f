package authclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

type replayKey struct{}

// Do sends req with the current access token. A 401 from a protected
// endpoint triggers one refresh shared by every concurrent caller, then a
// single replay with the new token. Requests without a session are sent
// as they are.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	body, err := readBody(req)
	if err != nil {
		return nil, err
	}

	creds, ok := c.store.Load()
	resp, err := c.send(req, body, creds.AccessToken, c.maxAttempts)
	if err != nil {
		return nil, err
	}
	if !ok || resp.StatusCode != http.StatusUnauthorized || authPaths[req.URL.Path] || isReplay(req.Context()) {
		return resp, nil
	}
	discard(resp)

	token, err := c.refresh(req.Context(), creds.AccessToken)
	if err != nil {
		return nil, err
	}
	replay := req.WithContext(context.WithValue(req.Context(), replayKey{}, true))
	return c.send(replay, body, token, c.maxAttempts)
}

func isReplay(ctx context.Context) bool {
	v, _ := ctx.Value(replayKey{}).(bool)
	return v
}

// refresh returns a usable access token. Callers holding the token the
// current flight replaces all wait for that one flight. The flight itself
// runs detached from the first caller's cancellation.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	ch := c.flights.DoChan("refresh", func() (any, error) {
		return c.rotate(context.WithoutCancel(ctx), stale)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) rotate(ctx context.Context, stale string) (string, error) {
	creds, ok := c.store.Load()
	if !ok {
		return "", ErrSessionExpired
	}
	if creds.AccessToken != stale {
		// Another flight already rotated.
		return creds.AccessToken, nil
	}

	// One attempt only: a refresh the server committed but whose answer was
	// lost has already consumed the token, so a resend can only fail.
	var out tokenResponse
	err := c.postJSON(ctx, audienceEndpoints[creds.Audience].refresh, "", refreshRequest{RefreshToken: creds.RefreshToken}, &out, 1)
	if err != nil {
		c.endSession(creds.Audience, err)
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	creds.AccessToken = out.AccessToken
	creds.RefreshToken = out.RefreshToken
	c.store.Save(creds)
	c.log.Debug().Str("audience", creds.Audience).Msg("access token refreshed")
	return creds.AccessToken, nil
}

func (c *Client) endSession(audience string, cause error) {
	c.store.Clear()
	loginURL := c.loginPaths[audience]
	c.log.Warn().Err(cause).Str("audience", audience).Str("login_url", loginURL).Msg("session ended")
	if c.onSessionEnd != nil {
		c.onSessionEnd(audience, loginURL)
	}
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("authclient: read request body: %w", err)
	}
	return body, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
