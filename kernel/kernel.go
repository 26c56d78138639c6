// Package kernel is the HTTP client for the knowledge-base application's
// local API. Every endpoint takes a JSON body and answers with a
// {code, msg, data} envelope; a non-zero code is an application error.
package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-zero envelope code returned by the kernel.
type APIError struct {
	Path string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kernel %s: code %d: %s", e.Path, e.Code, e.Msg)
}

// Client talks to the kernel API at a fixed base URL.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *slog.Logger
}

// New builds a client. token may be empty when the kernel runs without API
// authentication.
func New(baseURL, token string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 120 * time.Second},
		log:     log,
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// call posts params to path and decodes the envelope's data into out when
// out is non-nil.
func (c *Client) call(ctx context.Context, path string, params, out any) error {
	var body bytes.Buffer
	if params == nil {
		params = struct{}{}
	}
	if err := json.NewEncoder(&body).Encode(params); err != nil {
		return fmt.Errorf("encode request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kernel request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kernel request %s: unexpected status %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	c.log.DebugContext(ctx, "kernel.call",
		slog.String("path", path),
		slog.Int("code", env.Code),
		slog.Duration("elapsed", time.Since(start)),
	)
	if env.Code != 0 {
		return &APIError{Path: path, Code: env.Code, Msg: env.Msg}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data for %s: %w", path, err)
		}
	}
	return nil
}
