package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cfpblens/cfpblens/config"
	"github.com/cfpblens/cfpblens/internal/app"
	"github.com/cfpblens/cfpblens/internal/cfpb"
	"github.com/cfpblens/cfpblens/internal/ratelimit"
)

type stubUpstream struct {
	lastSearch url.Values
	searchErr  error
}

func (s *stubUpstream) Search(_ context.Context, query url.Values) (map[string]any, error) {
	s.lastSearch = query
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return map[string]any{
		"hits": map[string]any{"total": map[string]any{"value": float64(7)}},
	}, nil
}

func (s *stubUpstream) Trends(context.Context, url.Values) (map[string]any, error) {
	return map[string]any{}, nil
}

func (s *stubUpstream) GeoStates(context.Context, url.Values) (map[string]any, error) {
	return map[string]any{}, nil
}

func (s *stubUpstream) Suggest(context.Context, string, string, int) ([]string, error) {
	return []string{"Big Bank"}, nil
}

func (s *stubUpstream) Document(context.Context, string) (map[string]any, error) {
	return map[string]any{"_id": "42"}, nil
}

func newTestServer(up *stubUpstream, cfg *config.Config, limiter ratelimit.Limiter) *Server {
	if cfg == nil {
		cfg = &config.Config{}
	}
	svc := &app.Service{
		Upstream: up,
		Now: func() time.Time {
			return time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC)
		},
	}
	return New(svc, cfg, limiter, nil)
}

func doRequest(srv *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestSearchRoute(t *testing.T) {
	t.Parallel()
	up := &stubUpstream{}
	srv := newTestServer(up, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/api/complaints?search_term=mortgage&company=Big+Bank&company=Mid+Bank", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	if got := up.lastSearch.Get("search_term"); got != "mortgage" {
		t.Errorf("search_term = %q", got)
	}
	if got := up.lastSearch["company"]; len(got) != 2 {
		t.Errorf("company = %v, want both repeated values", got)
	}
	if got := up.lastSearch.Get("sort"); got != "relevance_desc" {
		t.Errorf("sort = %q", got)
	}

	var body struct {
		Data      any   `json:"data"`
		Citations []any `json:"citations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Citations) != 1 {
		t.Errorf("citations = %d", len(body.Citations))
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing request id header")
	}
}

func TestUpstreamErrorPassthrough(t *testing.T) {
	t.Parallel()
	up := &stubUpstream{searchErr: &cfpb.APIError{
		StatusCode: http.StatusBadRequest,
		Body:       "sub_lens is required for this lens\n",
	}}
	srv := newTestServer(up, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/api/complaints", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want the upstream 400 preserved", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sub_lens is required") {
		t.Errorf("body %q missing upstream detail", rec.Body.String())
	}
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Auth.APIKey = "sekrit"
	srv := newTestServer(&stubUpstream{}, cfg, nil)

	if rec := doRequest(srv, http.MethodGet, "/api/complaints", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	h := http.Header{}
	h.Set("X-API-Key", "sekrit")
	if rec := doRequest(srv, http.MethodGet, "/api/complaints", h); rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d", rec.Code)
	}

	// health and docs stay open
	if rec := doRequest(srv, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz behind auth: %d", rec.Code)
	}
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "topsecret"
	srv := newTestServer(&stubUpstream{}, cfg, nil)

	token, err := SignToken("analyst", []byte("topsecret"), time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if rec := doRequest(srv, http.MethodGet, "/api/complaints", h); rec.Code != http.StatusOK {
		t.Fatalf("bearer status = %d", rec.Code)
	}

	h.Set("Authorization", "Bearer not-a-token")
	if rec := doRequest(srv, http.MethodGet, "/api/complaints", h); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage bearer status = %d", rec.Code)
	}
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) bool { return false }

func TestRateLimited(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{}, nil, denyAll{})

	rec := doRequest(srv, http.MethodGet, "/api/complaints", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestSuggestValidation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{}, nil, nil)

	if rec := doRequest(srv, http.MethodGet, "/api/suggest?field=product&text=mo", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unsupported field", rec.Code)
	}
	if rec := doRequest(srv, http.MethodGet, "/api/suggest?field=company&text=big", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScreenshotUnavailable(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/api/screenshot", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 without a browser backend", rec.Code)
	}
}

func TestOpenAPICoversEveryTool(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/api/openapi.json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Paths) != 10 {
		t.Errorf("paths = %d, want one per tool", len(doc.Paths))
	}
	for _, path := range []string{"/api/complaints", "/api/signals/companies", "/api/dashboard-url"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("missing path %s", path)
		}
	}
}

func TestDashboardURLRoute(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/api/dashboard-url?search_term=fees&tab=Map", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, want := range []string{"searchText=fees", "tab=Map"} {
		if !strings.Contains(body["url"], want) {
			t.Errorf("url %q missing %q", body["url"], want)
		}
	}
}
