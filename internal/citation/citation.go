// Package citation builds the "verify this" URLs attached to every
// data-bearing tool response. A citation is always derived from the same
// filter bag that drove the actual upstream query, through the deeplink
// mapper, so it can never describe a different query than the one that ran.
package citation

import (
	"fmt"
	"time"

	"github.com/cfpblens/cfpblens/internal/deeplink"
)

// Citation is one outward-facing verification link.
type Citation struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// filterKeys are the shared filter names eligible for citation URLs; tool
// specific knobs (size, sort, depth) never leak into the UI link.
var filterKeys = map[string]struct{}{
	"search_term":             {},
	"date_received_min":       {},
	"date_received_max":       {},
	"company":                 {},
	"product":                 {},
	"issue":                   {},
	"state":                   {},
	"has_narrative":           {},
	"company_response":        {},
	"company_public_response": {},
	"consumer_disputed":       {},
	"tags":                    {},
	"submitted_via":           {},
	"timely":                  {},
	"zip_code":                {},
}

// Request describes one citation generation call.
type Request struct {
	// Context is one of search, trends, geo, document.
	Context string
	// Filters is the same filter bag that drove the upstream query.
	Filters map[string]any
	// TotalHits, when known, enriches the search description.
	TotalHits *int
	// Lens applies to trends citations only.
	Lens string
	// ComplaintID applies to document citations only.
	ComplaintID string
	// Today pins default-date derivation; zero means time.Now().
	Today time.Time
}

func pickFilters(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		if _, ok := filterKeys[key]; ok {
			out[key] = value
		}
	}
	return out
}

// Generate returns the citations for one tool response. Context-to-tab
// mapping: search->List, trends->Trends (plus a companion List link so raw
// rows stay reachable), geo->Map (same companion), document->a List-tab
// pointer naming the id, since the upstream UI has no stable per-complaint
// page.
func Generate(req Request) []Citation {
	filters := pickFilters(req.Filters)
	var citations []Citation

	switch req.Context {
	case "search":
		desc := "View these matching complaint(s) on CFPB.gov"
		if req.TotalHits != nil {
			desc = fmt.Sprintf("View all %d matching complaint(s) on CFPB.gov", *req.TotalHits)
		}
		citations = append(citations, Citation{
			Type:        "search_results",
			URL:         deeplink.Build(filters, "List", req.Today),
			Description: desc,
		})

	case "trends":
		lens := req.Lens
		if lens == "" {
			lens = "Overview"
		}
		trendParams := make(map[string]any, len(filters)+3)
		for k, v := range filters {
			trendParams[k] = v
		}
		trendParams["lens"] = lens
		trendParams["chartType"] = "line"
		trendParams["trend_interval"] = "month"
		citations = append(citations, Citation{
			Type:        "trends_chart",
			URL:         deeplink.Build(trendParams, "Trends", req.Today),
			Description: "Interactive trends chart on CFPB.gov",
		})

	case "geo":
		citations = append(citations, Citation{
			Type:        "geographic_map",
			URL:         deeplink.Build(filters, "Map", req.Today),
			Description: "Interactive geographic map on CFPB.gov",
		})

	case "document":
		if req.ComplaintID != "" {
			citations = append(citations, Citation{
				Type:        "complaint_detail",
				URL:         deeplink.UIBaseURL + "?tab=List",
				Description: fmt.Sprintf("Search for complaint %s on CFPB.gov", req.ComplaintID),
			})
		}
	}

	// Trends and geo views get a companion List link when any filters are
	// set, so the user can also browse the raw matching rows.
	if (req.Context == "trends" || req.Context == "geo") && len(filters) > 0 {
		citations = append(citations, Citation{
			Type:        "search_results",
			URL:         deeplink.Build(filters, "List", req.Today),
			Description: "Browse matching complaints on CFPB.gov",
		})
	}

	return citations
}
