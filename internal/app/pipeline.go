package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/cfpblens/cfpblens/internal/params"
	"github.com/cfpblens/cfpblens/internal/trend"
)

// SignalsRequest parameterizes the overall spike-signal tool.
type SignalsRequest struct {
	Filters
	Lens            string  `json:"lens,omitempty" query:"lens"`
	TrendInterval   string  `json:"trend_interval,omitempty" query:"trend_interval"`
	TrendDepth      int     `json:"trend_depth,omitempty" query:"trend_depth"`
	BaselineWindow  int     `json:"baseline_window,omitempty" query:"baseline_window"`
	MinBaselineMean float64 `json:"min_baseline_mean,omitempty" query:"min_baseline_mean"`
}

// SignalsResponse is the overall-signals payload: the effective parameters
// plus the computed signal, no raw upstream echo.
type SignalsResponse struct {
	Params  map[string]any          `json:"params"`
	Signals map[string]trend.Result `json:"signals"`
}

func (s *Service) signalDefaults(window int, minMean float64, companyFloor bool) (int, float64) {
	if window <= 0 {
		window = s.Defaults.BaselineWindow
		if window <= 0 {
			window = 8
		}
	}
	if minMean <= 0 {
		if companyFloor {
			minMean = s.Defaults.CompanyMinBaselineMean
			if minMean <= 0 {
				minMean = 25
			}
		} else {
			minMean = s.Defaults.MinBaselineMean
			if minMean <= 0 {
				minMean = 10
			}
		}
	}
	return window, minMean
}

// OverallSignals fetches the overall trend series and computes spike signals
// against the trailing baseline, excluding the running (partial) month.
func (s *Service) OverallSignals(ctx context.Context, req SignalsRequest) (*SignalsResponse, error) {
	if req.Lens == "" {
		req.Lens = "overview"
	}
	if req.TrendInterval == "" {
		req.TrendInterval = "month"
	}
	if req.TrendDepth <= 0 {
		req.TrendDepth = 24
	}
	window, minMean := s.signalDefaults(req.BaselineWindow, req.MinBaselineMean, false)

	payload, err := s.fetchTrends(ctx, TrendsRequest{
		Filters:       req.Filters,
		Lens:          req.Lens,
		TrendInterval: req.TrendInterval,
		TrendDepth:    req.TrendDepth,
	})
	if err != nil {
		return nil, err
	}

	points := trend.DropCurrentMonth(trend.OverallPoints(payload), s.now())
	return &SignalsResponse{
		Params: map[string]any{
			"lens":              req.Lens,
			"trend_interval":    req.TrendInterval,
			"trend_depth":       req.TrendDepth,
			"date_received_min": orNil(req.DateReceivedMin),
			"date_received_max": orNil(req.DateReceivedMax),
		},
		Signals: map[string]trend.Result{
			"overall": trend.ComputeSignals(points, window, minMean),
		},
	}, nil
}

// fetchTrends runs a raw trends call without citation wrapping; the signal
// and ranking tools consume the payload, not the caller.
func (s *Service) fetchTrends(ctx context.Context, req TrendsRequest) (map[string]any, error) {
	apiParams := trendsParams(req)
	return s.Upstream.Trends(ctx, params.Encode(apiParams))
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GroupRankRequest parameterizes group-spike ranking.
type GroupRankRequest struct {
	Filters
	Group           string  `json:"group" query:"group"`
	Lens            string  `json:"lens,omitempty" query:"lens"`
	TrendInterval   string  `json:"trend_interval,omitempty" query:"trend_interval"`
	TrendDepth      int     `json:"trend_depth,omitempty" query:"trend_depth"`
	SubLensDepth    int     `json:"sub_lens_depth,omitempty" query:"sub_lens_depth"`
	TopN            int     `json:"top_n,omitempty" query:"top_n"`
	BaselineWindow  int     `json:"baseline_window,omitempty" query:"baseline_window"`
	MinBaselineMean float64 `json:"min_baseline_mean,omitempty" query:"min_baseline_mean"`
}

// GroupSpike is one ranked dimension value; the signal fields are inlined
// next to the group identity.
type GroupSpike struct {
	Group    string  `json:"group"`
	DocCount float64 `json:"doc_count"`
	trend.Result
}

// GroupRankResponse carries the effective parameters and ranked results.
type GroupRankResponse struct {
	Params  map[string]any `json:"params"`
	Results []GroupSpike   `json:"results"`
}

// groupDimensions are the dimensions the upstream trends endpoint can group
// by as a sub-lens.
var groupDimensions = map[string]struct{}{"product": {}, "issue": {}}

// RankGroupSpikes issues a single sub-lens trends query, computes signals
// per group over complete months, and ranks by baseline z-score descending.
// Groups with too few points are excluded; groups whose z is suppressed sort
// last.
func (s *Service) RankGroupSpikes(ctx context.Context, req GroupRankRequest) (*GroupRankResponse, error) {
	if _, ok := groupDimensions[req.Group]; !ok {
		return nil, fmt.Errorf("group must be one of product, issue; got %q", req.Group)
	}
	if req.Lens == "" {
		req.Lens = "overview"
	}
	if req.TrendInterval == "" {
		req.TrendInterval = "month"
	}
	if req.TrendDepth <= 0 {
		req.TrendDepth = 12
	}
	if req.SubLensDepth <= 0 {
		req.SubLensDepth = 10
	}
	if req.TopN <= 0 {
		req.TopN = 10
	}
	window, minMean := s.signalDefaults(req.BaselineWindow, req.MinBaselineMean, false)

	payload, err := s.fetchTrends(ctx, TrendsRequest{
		Filters:       req.Filters,
		Lens:          req.Lens,
		TrendInterval: req.TrendInterval,
		TrendDepth:    req.TrendDepth,
		SubLens:       req.Group,
		SubLensDepth:  req.SubLensDepth,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	series := trend.GroupSeries(payload, req.Group)
	scored := make([]GroupSpike, 0, len(series))
	for _, g := range series {
		points := trend.DropCurrentMonth(g.Points, now)
		result := trend.ComputeSignals(points, window, minMean)
		if result.Err != "" {
			continue
		}
		scored = append(scored, GroupSpike{Group: g.Group, DocCount: g.DocCount, Result: result})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return zLess(scored[j].Z(), scored[i].Z())
	})
	if len(scored) > req.TopN {
		scored = scored[:req.TopN]
	}

	return &GroupRankResponse{
		Params: map[string]any{
			"group":             req.Group,
			"lens":              req.Lens,
			"trend_interval":    req.TrendInterval,
			"trend_depth":       req.TrendDepth,
			"sub_lens_depth":    req.SubLensDepth,
			"top_n":             req.TopN,
			"date_received_min": orNil(req.DateReceivedMin),
			"date_received_max": orNil(req.DateReceivedMax),
		},
		Results: scored,
	}, nil
}

// zLess orders z-scores ascending with nil strictly smallest, so a
// descending sort places nil-z entries last.
func zLess(a, b *float64) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return true
	case b == nil:
		return false
	default:
		return *a < *b
	}
}

// CompanyRankRequest parameterizes company-spike ranking. There is no
// company filter: the companies are discovered by the pipeline itself.
type CompanyRankRequest struct {
	Filters
	Lens            string  `json:"lens,omitempty" query:"lens"`
	TrendInterval   string  `json:"trend_interval,omitempty" query:"trend_interval"`
	TrendDepth      int     `json:"trend_depth,omitempty" query:"trend_depth"`
	TopN            int     `json:"top_n,omitempty" query:"top_n"`
	BaselineWindow  int     `json:"baseline_window,omitempty" query:"baseline_window"`
	MinBaselineMean float64 `json:"min_baseline_mean,omitempty" query:"min_baseline_mean"`
}

// CompanySpike is one ranked company with its computed signal.
type CompanySpike struct {
	Company         string       `json:"company"`
	CompanyDocCount int          `json:"company_doc_count"`
	Computed        trend.Result `json:"computed"`
}

// CompanyRankResponse mirrors the overall tool contract: effective date
// filters, a human-readable ranking descriptor, and the ranked results.
type CompanyRankResponse struct {
	DateFilters map[string]any `json:"date_filters"`
	Ranking     string         `json:"ranking"`
	Results     []CompanySpike `json:"results"`
}

// RankCompanySpikes is a two-phase pipeline. Phase one issues a zero-size
// search solely for its company aggregation side output; phase two issues
// one full trends query per discovered company, sequentially. The upstream
// trends endpoint cannot group by company when the company set itself must
// first be discovered, hence the N+1 shape. Any single upstream failure
// aborts the whole ranking: silently dropping an entity would make the
// result misleading with no indication of incompleteness.
func (s *Service) RankCompanySpikes(ctx context.Context, req CompanyRankRequest) (*CompanyRankResponse, error) {
	if req.Lens == "" {
		req.Lens = "overview"
	}
	if req.TrendInterval == "" {
		req.TrendInterval = "month"
	}
	if req.TrendDepth <= 0 {
		req.TrendDepth = 12
	}
	if req.TopN <= 0 {
		req.TopN = 10
	}
	window, minMean := s.signalDefaults(req.BaselineWindow, req.MinBaselineMean, true)

	// Phase one: discover the top companies from the search aggregation.
	discovery := req.Filters
	discovery.Company = nil
	apiParams := discovery.Params()
	apiParams["size"] = 0
	apiParams["frm"] = 0
	apiParams["sort"] = "created_date_desc"
	apiParams["no_highlight"] = true
	apiParams["no_aggs"] = false
	apiParams = params.Prune(apiParams)

	searchPayload, err := s.Upstream.Search(ctx, params.Encode(apiParams))
	if err != nil {
		return nil, fmt.Errorf("company discovery: %w", err)
	}
	companies := trend.CompanyBuckets(searchPayload)
	if len(companies) > req.TopN {
		companies = companies[:req.TopN]
	}

	// Phase two: one trends call per company, in discovery order.
	now := s.now()
	results := make([]CompanySpike, 0, len(companies))
	for _, company := range companies {
		scoped := req.Filters
		scoped.Company = []string{company.Company}
		payload, err := s.fetchTrends(ctx, TrendsRequest{
			Filters:       scoped,
			Lens:          req.Lens,
			TrendInterval: req.TrendInterval,
			TrendDepth:    req.TrendDepth,
		})
		if err != nil {
			return nil, fmt.Errorf("trends for %q: %w", company.Company, err)
		}
		points := trend.DropCurrentMonth(trend.OverallPoints(payload), now)
		results = append(results, CompanySpike{
			Company:         company.Company,
			CompanyDocCount: company.DocCount,
			Computed:        trend.ComputeSignals(points, window, minMean),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return zLess(results[j].Computed.Z(), results[i].Computed.Z())
	})

	return &CompanyRankResponse{
		DateFilters: map[string]any{
			"date_received_min": orNil(req.DateReceivedMin),
			"date_received_max": orNil(req.DateReceivedMax),
		},
		Ranking: "last bucket vs baseline z-score",
		Results: results,
	}, nil
}
