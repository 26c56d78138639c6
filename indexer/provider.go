// Package indexer submits exported document content to an external semantic
// index service and answers similarity queries against it. The transport core
// only ever talks to this package through the queue; indexing is an async
// side effect of writes.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider is the HTTP client for the index service's v1 API.
type Provider struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

// NewProvider builds a client for the index service rooted at baseURL.
func NewProvider(baseURL, apiKey string, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		baseURL: strings.TrimSuffix(baseURL, "/") + "/api/v1",
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

// Update indexes (or re-indexes) one document's content.
func (p *Provider) Update(ctx context.Context, id, content string) error {
	body, err := json.Marshal(map[string]string{"id": id, "content": content})
	if err != nil {
		return fmt.Errorf("encode index update: %w", err)
	}
	req, err := p.newRequest(ctx, http.MethodPost, p.baseURL+"/index", bytes.NewReader(body))
	if err != nil {
		return err
	}
	return p.doExpectOK(req, "index update")
}

// Delete removes a document from the index.
func (p *Provider) Delete(ctx context.Context, id string) error {
	req, err := p.newRequest(ctx, http.MethodDelete, p.baseURL+"/index/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return p.doExpectOK(req, "index delete")
}

// QueryMatch is one similarity hit.
type QueryMatch struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// Query returns up to topK documents similar to the query text.
func (p *Provider) Query(ctx context.Context, query string, topK int) ([]QueryMatch, error) {
	if topK <= 0 {
		topK = 5
	}
	body, err := json.Marshal(map[string]any{"query": query, "top_k": topK})
	if err != nil {
		return nil, fmt.Errorf("encode index query: %w", err)
	}
	req, err := p.newRequest(ctx, http.MethodPost, p.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("index query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("index query failed: %d - %s", resp.StatusCode, msg)
	}
	var out struct {
		Result []QueryMatch `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode index query result: %w", err)
	}
	return out.Result, nil
}

// Healthy reports whether the index service answers its health endpoint.
func (p *Provider) Healthy(ctx context.Context) bool {
	req, err := p.newRequest(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *Provider) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	return req, nil
}

func (p *Provider) doExpectOK(req *http.Request, op string) error {
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s failed: %d - %s", op, resp.StatusCode, msg)
	}
	return nil
}
