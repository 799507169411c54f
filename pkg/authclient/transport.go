package authclient

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/cenkalti/backoff/v5"
)

var errRetryableStatus = errors.New("authclient: retryable status")

// send performs req with transport retries. Network errors, 5xx and 429 are
// retried with exponential backoff up to tries attempts; a Retry-After hint
// replaces the backoff interval. When attempts run out on a retryable status
// the last response is returned as is.
func (c *Client) send(req *http.Request, body []byte, token string, tries uint) (*http.Response, error) {
	ctx := req.Context()
	var last *http.Response
	release := func() {
		if last != nil {
			discard(last)
			last = nil
		}
	}

	op := func() (*http.Response, error) {
		attempt := req.Clone(ctx)
		if body != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(body))
			attempt.GetBody = func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(body)), nil
			}
			attempt.ContentLength = int64(len(body))
		}
		if token != "" {
			attempt.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(attempt)
		release()
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			c.log.Debug().Err(err).Str("path", req.URL.Path).Msg("transport error")
			return nil, err
		}
		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		last = resp
		c.log.Debug().Int("status", resp.StatusCode).Str("path", req.URL.Path).Msg("retryable status")
		wait := retryAfterHeader(resp)
		switch {
		case wait > c.maxRetryWait:
			return nil, backoff.Permanent(errRetryableStatus)
		case wait > 0:
			return nil, backoff.RetryAfter(int(math.Ceil(wait.Seconds())))
		}
		return nil, errRetryableStatus
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(max(tries, 1)),
	)
	if err == nil {
		return resp, nil
	}
	if last != nil && ctx.Err() == nil {
		return last, nil
	}
	release()
	return nil, err
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxRetryWait
	return b
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
