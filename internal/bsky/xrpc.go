package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/zebadrabbit/HelpMePost/internal/model"
)

const maxResponseBytes = 1 << 20

// xrpcCall is one request against /xrpc/<nsid>.
type xrpcCall struct {
	op          string
	method      string
	nsid        string
	query       url.Values
	token       string
	contentType string
	body        []byte
	// authOnClientError maps every 4xx except 429 to AuthError.
	authOnClientError bool
}

// do runs call once with its own timeout. Terminal failures come back
// wrapped in backoff.Permanent so retryOnce stops on them.
func (c *Client) do(ctx context.Context, call xrpcCall, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	u := c.baseURL + "/xrpc/" + call.nsid
	if len(call.query) > 0 {
		u += "?" + call.query.Encode()
	}
	var body io.Reader
	if call.body != nil {
		body = bytes.NewReader(call.body)
	}
	req, err := http.NewRequestWithContext(ctx, call.method, u, body)
	if err != nil {
		return backoff.Permanent(&TransportError{Op: call.op, Err: err})
	}
	if call.contentType != "" {
		req.Header.Set("Content-Type", call.contentType)
	}
	if call.token != "" {
		req.Header.Set("Authorization", "Bearer "+call.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: call.op, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: call.op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(call, resp, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(&TransportError{Op: call.op, Err: fmt.Errorf("decode response: %w", err)})
	}
	return nil
}

func (c *Client) statusError(call xrpcCall, resp *http.Response, data []byte) error {
	msg := serverMessage(resp.StatusCode, data)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return backoff.Permanent(&RateLimitedError{RetryAfter: retryAfter(resp.Header, c.now()), Message: msg})
	case resp.StatusCode >= 500:
		return &TransportError{Op: call.op, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)}
	case resp.StatusCode >= 400 && (call.authOnClientError ||
		resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden):
		return backoff.Permanent(&AuthError{Status: resp.StatusCode, Message: msg})
	case resp.StatusCode >= 400:
		return backoff.Permanent(&ValidationError{Field: call.op, Status: resp.StatusCode, Message: msg})
	}
	return backoff.Permanent(&TransportError{Op: call.op, Err: fmt.Errorf("unexpected HTTP %d", resp.StatusCode)})
}

// serverMessage prefers the XRPC error body and falls back to the raw text.
func serverMessage(status int, data []byte) string {
	var xe model.XRPCError
	if err := json.Unmarshal(data, &xe); err == nil && (xe.Error != "" || xe.Message != "") {
		switch {
		case xe.Error != "" && xe.Message != "":
			return xe.Error + ": " + xe.Message
		case xe.Message != "":
			return xe.Message
		}
		return xe.Error
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		if len(s) > 200 {
			s = s[:200]
		}
		return s
	}
	return http.StatusText(status)
}

// retryAfter reads Retry-After (seconds or HTTP date), then the
// RateLimit-Reset epoch header the PDS sends.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil && t.After(now) {
			return t.Sub(now)
		}
	}
	if v := strings.TrimSpace(h.Get("RateLimit-Reset")); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if t := time.Unix(epoch, 0); t.After(now) {
				return t.Sub(now)
			}
		}
	}
	return 0
}

// retryOnce runs fn, and once more after retryDelay if the first failure
// was transient.
func (c *Client) retryOnce(ctx context.Context, op string, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), 1), ctx)
	err := backoff.RetryNotify(fn, b, func(err error, wait time.Duration) {
		c.log.Warn("transient xrpc failure, retrying",
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err == nil {
		return nil
	}
	var te *TransportError
	if (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && !errors.As(err, &te) {
		return &TransportError{Op: op, Err: err}
	}
	return err
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
