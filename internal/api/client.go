// Package api is a client for the proxy's /admin HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gemini-console/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// TokenSource supplies the bearer token and is told when the server rejected it.
type TokenSource interface {
	Token() (string, error)
	Expire()
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// HTTP2 negotiates h2 over TLS on the shared transport.
	HTTP2 bool
	// HTTPClient overrides the built transport (tests).
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func New(opts Options, tokens TokenSource) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts)
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

func newHTTPClient(opts Options) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}
}

// BaseURL returns the proxy root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*MessageResult, error) {
	raw, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	return parseMessage(raw), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Logger.Debug("admin request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}

	logger.Logger.Debug("admin request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Expire()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(resp.StatusCode, respBody)
	}

	return respBody, nil
}
