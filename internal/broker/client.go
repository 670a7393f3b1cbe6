// Package broker implements the outbound HTTP gateway client consumed
// by the order executor, rollover engine, and EOD scheduler against
// the brokerage gateway's HTTP API.
package broker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"arbitrage/internal/config"
	"arbitrage/pkg/ratelimit"
)

// Side/action constants matching the broker's wire vocabulary.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"

	ExchangeNFO = "NFO"
	ExchangeMCX = "MCX"
)

// Order status values returned by GET /orderbook.
const (
	StatusComplete  = "COMPLETE"
	StatusPending   = "PENDING"
	StatusOpen      = "OPEN"
	StatusPartial   = "PARTIAL"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

// Client is a thin, connection-pooled HTTP client for the brokerage
// gateway. It never retries on its own; callers (the executor, the
// quote-fetch path) own retry policy because the correct behavior on
// failure differs per call site.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.RateLimiter
}

// New builds a Client tuned for low-latency order-gateway traffic,
// mirroring the pooling knobs the exchange package uses for its own
// outbound HTTP clients.
func New(cfg config.BrokerConfig) *Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		limiter: ratelimit.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("broker rate limit wait %s %s: %w", method, path, err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("broker request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read broker response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &HTTPError{StatusCode: resp.StatusCode, Path: path, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal broker response: %w", err)
		}
	}
	return nil
}

// HTTPError is a non-2xx broker response, distinguished from transport
// failures so callers can decide transient-vs-permanent.
type HTTPError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("broker %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// Retryable reports whether the status suggests a transient gateway
// problem worth retrying (5xx, 429), satisfying pkg/retry.RetryableError.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Close releases idle connections on graceful shutdown.
func (c *Client) Close() {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
