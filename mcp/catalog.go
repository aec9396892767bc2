package mcp

// ToolDesc describes a single MCP tool, including input schema. The same
// descriptors drive the REST OpenAPI document so both surfaces advertise one
// contract.
type ToolDesc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

func strProp() map[string]any { return map[string]any{"type": "string"} }
func intProp(min int) map[string]any {
	return map[string]any{"type": "integer", "minimum": min}
}
func numProp() map[string]any { return map[string]any{"type": "number"} }
func listProp() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

// filterProps is the shared filter bag accepted by every query-shaped tool.
func filterProps() map[string]any {
	return map[string]any{
		"search_term":               strProp(),
		"field":                     strProp(),
		"company":                   listProp(),
		"company_public_response":   listProp(),
		"company_response":          listProp(),
		"consumer_consent_provided": listProp(),
		"consumer_disputed":         listProp(),
		"date_received_min":         strProp(),
		"date_received_max":         strProp(),
		"company_received_min":      strProp(),
		"company_received_max":      strProp(),
		"has_narrative":             listProp(),
		"issue":                     listProp(),
		"product":                   listProp(),
		"state":                     listProp(),
		"submitted_via":             listProp(),
		"tags":                      listProp(),
		"timely":                    listProp(),
		"zip_code":                  listProp(),
	}
}

func withFilters(extra map[string]any, required ...string) map[string]any {
	props := filterProps()
	for k, v := range extra {
		props[k] = v
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Catalog returns the advertised tool descriptors.
func Catalog() []ToolDesc {
	return []ToolDesc{
		{
			Name:        "search_complaints",
			Description: "Search consumer complaints with filters, pagination, and sorting. Returns matching complaints plus dashboard citations.",
			InputSchema: withFilters(map[string]any{
				"size":         intProp(0),
				"from_index":   intProp(0),
				"sort":         strProp(),
				"search_after": strProp(),
				"no_highlight": map[string]any{"type": "boolean"},
			}),
		},
		{
			Name:        "list_complaint_trends",
			Description: "Aggregate complaint counts over time through a lens (overview, product, issue, company) with an optional sub-lens breakdown.",
			InputSchema: withFilters(map[string]any{
				"lens":           strProp(),
				"trend_interval": strProp(),
				"trend_depth":    intProp(1),
				"sub_lens":       strProp(),
				"sub_lens_depth": intProp(1),
				"focus":          strProp(),
			}),
		},
		{
			Name:        "get_state_aggregations",
			Description: "Per-US-state complaint counts for the given filters.",
			InputSchema: withFilters(nil),
		},
		{
			Name:        "get_complaint_document",
			Description: "Fetch a single complaint by its id.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"complaint_id": strProp(),
				},
				"required": []string{"complaint_id"},
			},
		},
		{
			Name:        "suggest_filter_values",
			Description: "Autocomplete filter values. Supported fields: company, zip_code.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field": strProp(),
					"text":  strProp(),
					"size":  intProp(1),
				},
				"required": []string{"field", "text"},
			},
		},
		{
			Name:        "generate_cfpb_dashboard_url",
			Description: "Build a deep link into the public complaints dashboard matching the given filters and tab (List, Trends, Map).",
			InputSchema: withFilters(map[string]any{
				"tab":           strProp(),
				"lens":          strProp(),
				"sub_lens":      strProp(),
				"chart_type":    strProp(),
				"date_interval": strProp(),
			}),
		},
		{
			Name:        "get_overall_trend_signals",
			Description: "Compute spike signals (last vs previous bucket, last vs trailing baseline) over the overall complaint trend.",
			InputSchema: withFilters(map[string]any{
				"lens":              strProp(),
				"trend_interval":    strProp(),
				"trend_depth":       intProp(1),
				"baseline_window":   intProp(1),
				"min_baseline_mean": numProp(),
			}),
		},
		{
			Name:        "rank_group_spikes",
			Description: "Rank product or issue groups by how sharply their complaint volume spiked versus a trailing baseline.",
			InputSchema: withFilters(map[string]any{
				"group":             map[string]any{"type": "string", "enum": []string{"product", "issue"}},
				"lens":              strProp(),
				"trend_interval":    strProp(),
				"trend_depth":       intProp(1),
				"sub_lens_depth":    intProp(1),
				"top_n":             intProp(1),
				"baseline_window":   intProp(1),
				"min_baseline_mean": numProp(),
			}, "group"),
		},
		{
			Name:        "rank_company_spikes",
			Description: "Discover the most-complained-about companies, then rank them by complaint-volume spike versus a trailing baseline. Issues one trends query per company.",
			InputSchema: withFilters(map[string]any{
				"lens":              strProp(),
				"trend_interval":    strProp(),
				"trend_depth":       intProp(1),
				"top_n":             intProp(1),
				"baseline_window":   intProp(1),
				"min_baseline_mean": numProp(),
			}),
		},
		{
			Name:        "capture_cfpb_chart_screenshot",
			Description: "Render the public dashboard's trends chart for the given filters with a headless browser and return it as base64 PNG.",
			InputSchema: withFilters(map[string]any{
				"lens":          strProp(),
				"chart_type":    strProp(),
				"date_interval": strProp(),
			}),
		},
	}
}
