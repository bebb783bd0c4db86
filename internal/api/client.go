// Package api implements the HTTP client for the Tempo backend. It handles
// request construction, authentication, and error classification. It
// deliberately performs no internal retries: durable mutations are retried
// across sync passes by the sync engine, which owns the attempt budget.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const userAgent = "tempo-sync/0.1"

// TokenSource provides bearer credentials. Defined at the consumer per Go
// convention "accept interfaces, return structs"; credfile.Source is the
// real implementation. The credential is obtained at call time, never
// cached, so a refreshed token is always used.
type TokenSource interface {
	Token() (string, error)
}

// Client is an HTTP client for the Tempo API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
}

// NewClient creates an API client. baseURL is typically
// "https://api.tempo.app/v1".
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		token:      token,
		logger:     logger,
	}
}

// Do executes a single HTTP request against the API. The path is appended
// to the client's base URL. For non-nil bodies, Content-Type is set to
// application/json. The caller is responsible for closing the response
// body on success. Non-2xx responses are returned as *Error.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := c.baseURL + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("api: obtaining credential: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}

	// 2xx — success.
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	// Read and close body for error responses.
	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	return nil, &Error{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(errBody),
	}
}

// Send transmits a mutation payload and discards the response body. This is
// the sync engine's single network transmission per operation per pass.
func (c *Client) Send(ctx context.Context, method, resource string, payload json.RawMessage) error {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	resp, err := c.Do(ctx, method, resource, body)
	if err != nil {
		return err
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return nil
}
