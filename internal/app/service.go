// Package app holds the transport-independent tool logic: every MCP tool and
// REST route funnels into one Service method, so both surfaces stay in exact
// behavioral agreement.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/cfpblens/cfpblens/internal/cfpb"
	"github.com/cfpblens/cfpblens/internal/citation"
	"github.com/cfpblens/cfpblens/internal/deeplink"
	"github.com/cfpblens/cfpblens/internal/params"
)

// Upstream is the read-only complaint API consumed by every operation.
// *cfpb.Client satisfies it; tests inject fakes.
type Upstream interface {
	Search(ctx context.Context, query url.Values) (map[string]any, error)
	Trends(ctx context.Context, query url.Values) (map[string]any, error)
	GeoStates(ctx context.Context, query url.Values) (map[string]any, error)
	Suggest(ctx context.Context, field, text string, size int) ([]string, error)
	Document(ctx context.Context, complaintID string) (map[string]any, error)
}

// ChartCapturer renders the CFPB trends chart at a deep-link URL as PNG
// bytes. Optional; operations degrade with ErrScreenshotUnavailable when nil.
type ChartCapturer interface {
	Capture(ctx context.Context, target string) ([]byte, error)
}

// ErrScreenshotUnavailable is returned when no browser backend is wired.
var ErrScreenshotUnavailable = errors.New("screenshot service unavailable (browser not initialized)")

// Defaults carries the signal tuning knobs from configuration.
type Defaults struct {
	BaselineWindow         int
	MinBaselineMean        float64
	CompanyMinBaselineMean float64
}

// Service wires the upstream client, clock, and signal defaults. All methods
// are stateless per call and safe for concurrent use.
type Service struct {
	Upstream Upstream
	Shots    ChartCapturer
	Logger   *log.Logger
	Now      func() time.Time
	Defaults Defaults
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// Filters is the shared filter bag accepted by every query-shaped tool. All
// values are optional; normalization drops whatever is empty.
type Filters struct {
	SearchTerm              string   `json:"search_term,omitempty" query:"search_term"`
	Field                   string   `json:"field,omitempty" query:"field"`
	Company                 []string `json:"company,omitempty" query:"company"`
	CompanyPublicResponse   []string `json:"company_public_response,omitempty" query:"company_public_response"`
	CompanyResponse         []string `json:"company_response,omitempty" query:"company_response"`
	ConsumerConsentProvided []string `json:"consumer_consent_provided,omitempty" query:"consumer_consent_provided"`
	ConsumerDisputed        []string `json:"consumer_disputed,omitempty" query:"consumer_disputed"`
	DateReceivedMin         string   `json:"date_received_min,omitempty" query:"date_received_min"`
	DateReceivedMax         string   `json:"date_received_max,omitempty" query:"date_received_max"`
	CompanyReceivedMin      string   `json:"company_received_min,omitempty" query:"company_received_min"`
	CompanyReceivedMax      string   `json:"company_received_max,omitempty" query:"company_received_max"`
	HasNarrative            []string `json:"has_narrative,omitempty" query:"has_narrative"`
	Issue                   []string `json:"issue,omitempty" query:"issue"`
	Product                 []string `json:"product,omitempty" query:"product"`
	State                   []string `json:"state,omitempty" query:"state"`
	SubmittedVia            []string `json:"submitted_via,omitempty" query:"submitted_via"`
	Tags                    []string `json:"tags,omitempty" query:"tags"`
	Timely                  []string `json:"timely,omitempty" query:"timely"`
	ZipCode                 []string `json:"zip_code,omitempty" query:"zip_code"`
}

// Params assembles and prunes the known upstream filter keys. Tool-specific
// parameters (size, sort, lens, ...) are layered on top by each caller.
func (f Filters) Params() map[string]any {
	return params.Prune(map[string]any{
		"search_term":               f.SearchTerm,
		"field":                     f.Field,
		"company":                   f.Company,
		"company_public_response":   f.CompanyPublicResponse,
		"company_response":          f.CompanyResponse,
		"consumer_consent_provided": f.ConsumerConsentProvided,
		"consumer_disputed":         f.ConsumerDisputed,
		"date_received_min":         f.DateReceivedMin,
		"date_received_max":         f.DateReceivedMax,
		"company_received_min":      f.CompanyReceivedMin,
		"company_received_max":      f.CompanyReceivedMax,
		"has_narrative":             f.HasNarrative,
		"issue":                     f.Issue,
		"product":                   f.Product,
		"state":                     f.State,
		"submitted_via":             f.SubmittedVia,
		"tags":                      f.Tags,
		"timely":                    f.Timely,
		"zip_code":                  f.ZipCode,
	})
}

// Envelope is the response shape of every data-bearing tool.
type Envelope struct {
	Data      any                 `json:"data"`
	Citations []citation.Citation `json:"citations"`
}

// SearchRequest parameterizes a complaint search.
type SearchRequest struct {
	Filters
	Size        int    `json:"size,omitempty" query:"size"`
	From        int    `json:"from_index,omitempty" query:"from_index"`
	Sort        string `json:"sort,omitempty" query:"sort"`
	SearchAfter string `json:"search_after,omitempty" query:"search_after"`
	NoHighlight bool   `json:"no_highlight,omitempty" query:"no_highlight"`
}

// TrendsRequest parameterizes a trends aggregation query.
type TrendsRequest struct {
	Filters
	Lens          string `json:"lens,omitempty" query:"lens"`
	TrendInterval string `json:"trend_interval,omitempty" query:"trend_interval"`
	TrendDepth    int    `json:"trend_depth,omitempty" query:"trend_depth"`
	SubLens       string `json:"sub_lens,omitempty" query:"sub_lens"`
	SubLensDepth  int    `json:"sub_lens_depth,omitempty" query:"sub_lens_depth"`
	Focus         string `json:"focus,omitempty" query:"focus"`
}

func (r *TrendsRequest) applyDefaults() {
	if r.Lens == "" {
		r.Lens = "overview"
	}
	if r.TrendInterval == "" {
		r.TrendInterval = "month"
	}
	if r.TrendDepth <= 0 {
		r.TrendDepth = 5
	}
	if r.SubLensDepth <= 0 {
		r.SubLensDepth = 5
	}
}

func (s *Service) warnUnknown(apiParams map[string]any, allowed map[string]struct{}, op string) {
	if unknown := deeplink.UnknownKeys(apiParams, allowed); len(unknown) > 0 {
		s.logf("[APP] %s: forwarding keys unknown to upstream: %v", op, unknown)
	}
}

// Search runs a filtered search with pagination and sorting, and attaches a
// List-tab citation built from the same filters.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*Envelope, error) {
	if req.Size < 0 {
		req.Size = 0
	}
	apiParams := req.Filters.Params()
	apiParams["size"] = req.Size
	apiParams["frm"] = req.From
	apiParams["sort"] = req.Sort
	apiParams["search_after"] = req.SearchAfter
	apiParams["no_highlight"] = req.NoHighlight
	apiParams["no_aggs"] = false
	apiParams = params.Prune(apiParams)
	s.warnUnknown(apiParams, deeplink.SearchEndpointKeys, "search")

	data, err := s.Upstream.Search(ctx, params.Encode(apiParams))
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Data: data,
		Citations: citation.Generate(citation.Request{
			Context:   "search",
			Filters:   req.Filters.Params(),
			TotalHits: totalHits(data),
			Today:     s.now(),
		}),
	}, nil
}

// totalHits digs hits.total out of a search payload; the upstream has served
// both a bare number and an object with a value field.
func totalHits(data map[string]any) *int {
	raw := data["hits"]
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	switch total := m["total"].(type) {
	case float64:
		n := int(total)
		return &n
	case map[string]any:
		if v, ok := total["value"].(float64); ok {
			n := int(v)
			return &n
		}
	}
	return nil
}

// trendsParams assembles the upstream query for a trends call. The upstream
// rejects sub_lens_depth when sub_lens is unset, so it is only layered when
// a sub-lens is present.
func trendsParams(req TrendsRequest) map[string]any {
	apiParams := req.Filters.Params()
	apiParams["lens"] = req.Lens
	apiParams["trend_interval"] = req.TrendInterval
	apiParams["trend_depth"] = req.TrendDepth
	apiParams["sub_lens"] = req.SubLens
	if req.SubLens != "" {
		apiParams["sub_lens_depth"] = req.SubLensDepth
	}
	apiParams["focus"] = req.Focus
	return params.Prune(apiParams)
}

// Trends runs a lens aggregation query and attaches trends + list citations.
func (s *Service) Trends(ctx context.Context, req TrendsRequest) (*Envelope, error) {
	req.applyDefaults()
	apiParams := trendsParams(req)
	s.warnUnknown(apiParams, deeplink.TrendsEndpointKeys, "trends")

	data, err := s.Upstream.Trends(ctx, params.Encode(apiParams))
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Data: data,
		Citations: citation.Generate(citation.Request{
			Context: "trends",
			Filters: req.Filters.Params(),
			Lens:    req.Lens,
			Today:   s.now(),
		}),
	}, nil
}

// Geo returns per-state counts with a Map-tab citation.
func (s *Service) Geo(ctx context.Context, filters Filters) (*Envelope, error) {
	apiParams := filters.Params()
	s.warnUnknown(apiParams, deeplink.GeoEndpointKeys, "geo")

	data, err := s.Upstream.GeoStates(ctx, params.Encode(apiParams))
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Data: data,
		Citations: citation.Generate(citation.Request{
			Context: "geo",
			Filters: apiParams,
			Today:   s.now(),
		}),
	}, nil
}

// Document fetches one complaint by id with a degraded List-tab citation
// (the upstream UI has no stable per-complaint link).
func (s *Service) Document(ctx context.Context, complaintID string) (*Envelope, error) {
	if complaintID == "" {
		return nil, errors.New("complaint_id is required")
	}
	data, err := s.Upstream.Document(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Data: data,
		Citations: citation.Generate(citation.Request{
			Context:     "document",
			ComplaintID: complaintID,
			Today:       s.now(),
		}),
	}, nil
}

// Suggest fetches autocomplete values for company or zip_code.
func (s *Service) Suggest(ctx context.Context, field, text string, size int) (*Envelope, error) {
	if field != "company" && field != "zip_code" {
		return nil, errors.New("field must be company or zip_code")
	}
	if size <= 0 {
		size = 10
	}
	values, err := s.Upstream.Suggest(ctx, field, text, size)
	if err != nil {
		return nil, err
	}
	return &Envelope{Data: values, Citations: []citation.Citation{}}, nil
}

// DashboardRequest parameterizes deep-link construction.
type DashboardRequest struct {
	Filters
	Tab          string `json:"tab,omitempty" query:"tab"`
	Lens         string `json:"lens,omitempty" query:"lens"`
	SubLens      string `json:"sub_lens,omitempty" query:"sub_lens"`
	ChartType    string `json:"chart_type,omitempty" query:"chart_type"`
	DateInterval string `json:"date_interval,omitempty" query:"date_interval"`
}

// DashboardURL builds a deep-link into the official complaints UI matching
// the given filters.
func (s *Service) DashboardURL(req DashboardRequest) string {
	apiParams := req.Filters.Params()
	if req.Lens != "" {
		apiParams["lens"] = req.Lens
	}
	if req.SubLens != "" {
		apiParams["sub_lens"] = req.SubLens
	}
	if req.ChartType != "" {
		apiParams["chartType"] = req.ChartType
	}
	if req.DateInterval != "" {
		apiParams["trend_interval"] = req.DateInterval
	}
	return deeplink.Build(apiParams, req.Tab, s.now())
}

// ScreenshotRequest parameterizes a chart capture.
type ScreenshotRequest struct {
	Filters
	Lens         string `json:"lens,omitempty" query:"lens"`
	ChartType    string `json:"chart_type,omitempty" query:"chart_type"`
	DateInterval string `json:"date_interval,omitempty" query:"date_interval"`
}

// CaptureChart renders the official trends chart for the given filters and
// returns it base64-encoded.
func (s *Service) CaptureChart(ctx context.Context, req ScreenshotRequest) (string, error) {
	if s.Shots == nil {
		return "", ErrScreenshotUnavailable
	}
	if req.Lens == "" {
		req.Lens = "Product"
	}
	if req.ChartType == "" {
		req.ChartType = "line"
	}
	if req.DateInterval == "" {
		req.DateInterval = "Month"
	}
	target := s.DashboardURL(DashboardRequest{
		Filters:      req.Filters,
		Tab:          "Trends",
		Lens:         req.Lens,
		ChartType:    req.ChartType,
		DateInterval: req.DateInterval,
	})
	png, err := s.Shots.Capture(ctx, target)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

var _ Upstream = (*cfpb.Client)(nil)
