// Package cfpb is a thin client for the public CFPB Consumer Complaint
// Search API. Read-only, no retries, no caching; list-valued filters are
// sent as repeated query keys. Upstream validation errors are surfaced
// verbatim because they are actionable for the caller.
package cfpb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultBaseURL is the production complaint search API.
const DefaultBaseURL = "https://www.consumerfinance.gov/data-research/consumer-complaints/search/api/v1/"

var upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cfpblens_upstream_requests_total",
	Help: "Upstream CFPB API calls by endpoint and HTTP status.",
}, []string{"endpoint", "status"})

// APIError carries a non-2xx upstream response: status code plus the body
// text exactly as received.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cfpb upstream error: status %d: %s", e.StatusCode, e.Body)
}

// Client issues plain GET requests against the complaint search API.
type Client struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
}

// New builds a client with the given base URL (DefaultBaseURL when empty)
// and timeout (30s when zero).
func New(baseURL string, timeout time.Duration, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		HTTP:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	target := c.BaseURL + endpoint
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		upstreamRequests.WithLabelValues(metricEndpoint(endpoint), "error").Inc()
		return fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	upstreamRequests.WithLabelValues(metricEndpoint(endpoint), strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// metricEndpoint collapses per-document paths into one label value.
func metricEndpoint(endpoint string) string {
	switch endpoint {
	case "", "trends", "geo/states", "_suggest_company", "_suggest_zip":
		if endpoint == "" {
			return "search"
		}
		return endpoint
	default:
		return "document"
	}
}

// Search runs a filtered search. The caller supplies fully assembled query
// parameters (filters plus size/frm/sort and friends).
func (c *Client) Search(ctx context.Context, query url.Values) (map[string]any, error) {
	var payload map[string]any
	if err := c.getJSON(ctx, "", query, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Trends runs a lens/interval aggregation query.
func (c *Client) Trends(ctx context.Context, query url.Values) (map[string]any, error) {
	var payload map[string]any
	if err := c.getJSON(ctx, "trends", query, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// GeoStates returns per-state complaint counts.
func (c *Client) GeoStates(ctx context.Context, query url.Values) (map[string]any, error) {
	var payload map[string]any
	if err := c.getJSON(ctx, "geo/states", query, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Suggest fetches autocomplete values for company or zip_code. Upstream
// sometimes returns more rows than requested; the result is truncated to
// size client-side.
func (c *Client) Suggest(ctx context.Context, field, text string, size int) ([]string, error) {
	endpoint := "_suggest_zip"
	if field == "company" {
		endpoint = "_suggest_company"
	}
	query := url.Values{}
	query.Set("text", text)
	query.Set("size", strconv.Itoa(size))

	var values []string
	if err := c.getJSON(ctx, endpoint, query, &values); err != nil {
		return nil, err
	}
	if size > 0 && len(values) > size {
		values = values[:size]
	}
	return values, nil
}

// Document fetches a single complaint by id.
func (c *Client) Document(ctx context.Context, complaintID string) (map[string]any, error) {
	var payload map[string]any
	if err := c.getJSON(ctx, url.PathEscape(complaintID), url.Values{}, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
