// Package webhook posts JSON payloads to a Slack-compatible incoming webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
	"workshop-functions/internal/config"
)

const defaultTimeout = 10 * time.Second

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ValueReader resolves an SSM parameter to its decrypted value.
type ValueReader interface {
	Value(ctx context.Context, name string) (string, error)
}

type Client struct {
	url    string
	http   Doer
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(d Doer) Option { return func(c *Client) { c.http = d } }
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	return c
}

// ResolveURL returns the literal URL when set, otherwise reads it from the parameter.
func ResolveURL(ctx context.Context, cfg config.Webhook, r ValueReader) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}
	if cfg.Parameter == "" {
		return "", apperr.Config("no webhook url or parameter configured", nil)
	}
	return r.Value(ctx, cfg.Parameter)
}

// Post succeeds only on HTTP 200. Anything else is a delivery error carrying the body.
func (c *Client) Post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Data("encode webhook payload", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		return nil, c.post(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Delivery("webhook circuit open", err)
	}
	return err
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return apperr.Config("build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Delivery("webhook request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return apperr.Delivery(
			fmt.Sprintf("webhook returned status %d, response: %s", resp.StatusCode, string(respBody)), nil)
	}
	c.logger.Info("webhook delivered", zap.Int("status", resp.StatusCode))
	return nil
}
