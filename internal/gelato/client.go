// Package gelato is a client for the print-on-demand fulfillment vendor:
// orders, product prices and ecommerce store products.
package gelato

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
)

const maxErrorBodyBytes = 4 << 10

type Config struct {
	APIKey       string
	StoreID      string
	OrderURL     string
	ProductURL   string
	EcommerceURL string
	HTTPClient   *http.Client
}

type Client struct {
	apiKey       string
	storeID      string
	orderURL     string
	productURL   string
	ecommerceURL string
	httpClient   *http.Client
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiKey:       cfg.APIKey,
		storeID:      cfg.StoreID,
		orderURL:     strings.TrimRight(cfg.OrderURL, "/"),
		productURL:   strings.TrimRight(cfg.ProductURL, "/"),
		ecommerceURL: strings.TrimRight(cfg.EcommerceURL, "/"),
		httpClient:   httpClient,
	}
}

// APIError is a non-2xx vendor response. Body is for server-side logs only.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gelato API returned status %d for %s %s", e.StatusCode, e.Method, e.Path)
}

// Retryable reports whether the vendor signalled a transient condition.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// StatusCode returns the vendor status behind err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func (c *Client) do(ctx context.Context, method, baseURL, path string, in, out any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gelato: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read gelato response: %w", readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close gelato response body: %w", closeErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(raw) > maxErrorBodyBytes {
			raw = raw[:maxErrorBodyBytes]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: string(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("failed to parse gelato response: %w", err)
		}
	}
	return raw, nil
}
