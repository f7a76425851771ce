// Package upstream reads records from the MarSUKAT REST API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
)

// Resource is an API collection path relative to the base URL.
type Resource string

const (
	ResourceOrderItems     Resource = "orders/items"
	ResourceProduction     Resource = "production"
	ResourceSalesReport    Resource = "sales-report"
	ResourceInventoryStock Resource = "inventory/stocks"
	ResourceRentals        Resource = "rentals"
	ResourceCommercialJobs Resource = "commercial-jobs"
)

// Known reports whether r is one of the API collections above.
func Known(r Resource) bool {
	switch r {
	case ResourceOrderItems, ResourceProduction, ResourceSalesReport,
		ResourceInventoryStock, ResourceRentals, ResourceCommercialJobs:
		return true
	}
	return false
}

// ErrUnauthorized is returned when the API rejects the bearer token.
var ErrUnauthorized = errors.New("upstream: unauthorized")

// StatusError reports a non-2xx response.
type StatusError struct {
	Resource Resource
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: %s returned status %d", e.Resource, e.Code)
}

// ObserveFunc receives the outcome of every Fetch. code is 0 when no response
// arrived.
type ObserveFunc func(resource Resource, code int, elapsed time.Duration)

// Config groups client settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Observe ObserveFunc
}

// Client wraps interactions with the MarSUKAT API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	observe    ObserveFunc
}

// NewClient constructs a new client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		observe: cfg.Observe,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch GETs a collection and decodes it into records. Both a bare JSON array
// and a {"data": [...]} envelope are accepted.
func (c *Client) Fetch(ctx context.Context, resource Resource, query url.Values) ([]aggregate.Record, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(string(resource), "/"))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(resource, 0, start)
		return nil, fmt.Errorf("upstream: get %s: %w", resource, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.record(resource, resp.StatusCode, start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read %s: %w", resource, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, resource)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Resource: resource, Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	records, err := decodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("upstream: decode %s: %w", resource, err)
	}
	return records, nil
}

func (c *Client) record(resource Resource, code int, start time.Time) {
	if c.observe != nil {
		c.observe(resource, code, time.Since(start))
	}
}

// Ping checks that the API answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return nil
}

type envelope struct {
	Data []aggregate.Record `json:"data"`
}

func decodeRecords(body []byte) ([]aggregate.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []aggregate.Record{}, nil
	}
	if trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, err
		}
		if env.Data == nil {
			return []aggregate.Record{}, nil
		}
		return env.Data, nil
	}
	var records []aggregate.Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
