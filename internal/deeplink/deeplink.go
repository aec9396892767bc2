// Package deeplink translates between the CFPB search API parameter
// vocabulary and the query-string vocabulary of the public complaints UI at
// consumerfinance.gov, so every response can carry a URL a human can open
// and see the same result set.
//
// The two directions are intentionally NOT inverses for every key:
//   - trend_interval is Title Cased on egress ("month" -> "Month") and
//     lowercased on ingress;
//   - lens/sub_lens are snake_cased and lowercased in both directions, so a
//     Title Cased UI value does not survive a round trip;
//   - frm/page conversion loses frm when size is absent or zero.
//
// These asymmetries match the observed behavior of the upstream UI and must
// be preserved as-is.
package deeplink

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cfpblens/cfpblens/internal/params"
)

// UIBaseURL is the public complaints search UI.
const UIBaseURL = "https://www.consumerfinance.gov/data-research/consumer-complaints/search/"

// DefaultStartDate is the earliest practical date in the dataset, used when
// a caller omits date_received_min.
const DefaultStartDate = "2011-12-01"

var apiToURLParam = map[string]string{
	"search_term":    "searchText",
	"field":          "searchField",
	"sub_lens":       "subLens",
	"trend_interval": "dateInterval",
}

var urlToAPIParam = map[string]string{
	"searchText":   "search_term",
	"searchField":  "field",
	"subLens":      "sub_lens",
	"dateInterval": "trend_interval",
	"page":         "frm",
}

// trendKeys are the parameters that only make sense on the Trends tab; their
// presence switches the inferred tab when the caller does not pick one.
var trendKeys = map[string]struct{}{
	"lens":           {},
	"sub_lens":       {},
	"trend_interval": {},
	"trend_depth":    {},
	"sub_lens_depth": {},
	"focus":          {},
	"chartType":      {},
}

// SearchEndpointKeys is the set of parameter names the upstream search
// endpoint accepts.
var SearchEndpointKeys = keySet(
	"search_term", "field", "frm", "size", "sort", "format", "no_aggs",
	"no_highlight", "company", "company_public_response",
	"company_received_max", "company_received_min", "company_response",
	"consumer_consent_provided", "consumer_disputed", "date_received_max",
	"date_received_min", "has_narrative", "issue", "product", "search_after",
	"state", "submitted_via", "tags", "timely", "zip_code",
)

// GeoEndpointKeys is the set of parameter names the geo/states endpoint accepts.
var GeoEndpointKeys = keySet(
	"search_term", "field", "company", "company_public_response",
	"company_received_max", "company_received_min", "company_response",
	"consumer_consent_provided", "consumer_disputed", "date_received_max",
	"date_received_min", "has_narrative", "issue", "product", "state",
	"submitted_via", "tags", "timely", "zip_code",
)

// TrendsEndpointKeys is the set of parameter names the trends endpoint accepts.
var TrendsEndpointKeys = keySet(
	"search_term", "field", "company", "company_public_response",
	"company_received_max", "company_received_min", "company_response",
	"consumer_consent_provided", "consumer_disputed", "date_received_max",
	"date_received_min", "focus", "has_narrative", "issue", "lens", "product",
	"state", "submitted_via", "sub_lens", "sub_lens_depth", "tags", "timely",
	"trend_depth", "trend_interval", "zip_code",
)

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// UnknownKeys returns the sorted parameter names not accepted by the given
// endpoint key set. Best-effort advisory only; callers still forward the
// full parameter set so upstream validation errors stay actionable.
func UnknownKeys(apiParams map[string]any, allowed map[string]struct{}) []string {
	var unknown []string
	for key := range apiParams {
		if _, ok := allowed[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

var intervalSplit = regexp.MustCompile(`[\s_-]+`)
var lensSplit = regexp.MustCompile(`[\s-]+`)

// formatTrendInterval renders the UI form of an interval: tokens split on
// whitespace/underscore/hyphen, capitalized, space-joined ("month" -> "Month",
// "3_month" -> "3 Month").
func formatTrendInterval(value string) string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return value
	}
	tokens := intervalSplit.Split(cleaned, -1)
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		out = append(out, strings.ToUpper(token[:1])+strings.ToLower(token[1:]))
	}
	return strings.Join(out, " ")
}

// formatLens collapses whitespace/hyphen runs into underscores and lowercases.
func formatLens(value string) string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return value
	}
	return strings.ToLower(lensSplit.ReplaceAllString(cleaned, "_"))
}

// parseInt interprets ints, floats, and digit strings; anything else is
// treated as absent. Deep-link construction is best-effort and never rejects
// a malformed value.
func parseInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		trimmed := strings.TrimSpace(x)
		if trimmed == "" {
			return 0, false
		}
		n, err := strconv.Atoi(trimmed)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Normalize prunes a raw API parameter map and applies the internal casing
// rules: trend_interval lowercased, lens/sub_lens snake_cased.
func Normalize(apiParams map[string]any) map[string]any {
	normalized := make(map[string]any, len(apiParams))
	for key, value := range params.Prune(apiParams) {
		if s, ok := value.(string); ok {
			switch key {
			case "trend_interval":
				value = strings.ToLower(s)
			case "lens", "sub_lens":
				value = formatLens(s)
			}
		}
		normalized[key] = value
	}
	return normalized
}

// defaultEndDate is the last day of the month before (today - 30 days). The
// upstream UI applies this implicit trailing window when dates are omitted;
// reproducing it keeps API results and the linked UI view in agreement.
func defaultEndDate(today time.Time) string {
	cutoff := today.AddDate(0, 0, -30)
	firstOfMonth := time.Date(cutoff.Year(), cutoff.Month(), 1, 0, 0, 0, 0, cutoff.Location())
	return firstOfMonth.AddDate(0, 0, -1).Format("2006-01-02")
}

// ApplyDefaultDates returns a copy of apiParams with explicit
// date_received_min/max filled in when absent. A zero today means time.Now().
func ApplyDefaultDates(apiParams map[string]any, today time.Time) map[string]any {
	if today.IsZero() {
		today = time.Now()
	}
	out := make(map[string]any, len(apiParams)+2)
	for k, v := range apiParams {
		out[k] = v
	}
	if v, ok := out["date_received_min"]; !ok || v == nil {
		out["date_received_min"] = DefaultStartDate
	}
	if v, ok := out["date_received_max"]; !ok || v == nil {
		out["date_received_max"] = defaultEndDate(today)
	}
	return out
}

// ToURLParams maps normalized API parameters into the UI vocabulary. frm is
// dropped in favor of a derived 1-indexed page when size permits.
func ToURLParams(apiParams map[string]any) map[string]any {
	normalized := Normalize(apiParams)
	urlParams := make(map[string]any, len(normalized))
	for key, value := range normalized {
		if key == "frm" {
			continue
		}
		mappedKey := key
		if mk, ok := apiToURLParam[key]; ok {
			mappedKey = mk
		}
		if s, ok := value.(string); ok {
			switch key {
			case "trend_interval":
				value = formatTrendInterval(s)
			case "lens", "sub_lens":
				value = formatLens(s)
			}
		}
		urlParams[mappedKey] = value
	}
	applyPagination(normalized, urlParams)
	return urlParams
}

// applyPagination derives page = floor(frm/size)+1. When size is absent or
// zero the page cannot be derived safely and is omitted entirely.
func applyPagination(apiParams, urlParams map[string]any) {
	frm, okFrm := parseInt(apiParams["frm"])
	size, okSize := parseInt(apiParams["size"])
	if !okFrm || !okSize || size == 0 {
		return
	}
	urlParams["page"] = (frm / size) + 1
}

// Build constructs the UI deep-link for the given API parameters. tab may be
// empty; when it is and any trend-only key is present, the Trends tab is
// inferred. A zero today means time.Now(). Calling twice with the same input
// and the same today yields byte-identical output.
func Build(apiParams map[string]any, tab string, today time.Time) string {
	withDates := ApplyDefaultDates(apiParams, today)
	urlParams := ToURLParams(withDates)

	if tab == "" {
		for key := range apiParams {
			if _, ok := trendKeys[key]; ok {
				tab = "Trends"
				break
			}
		}
	}
	if tab != "" {
		urlParams["tab"] = tab
	}

	if len(urlParams) == 0 {
		return UIBaseURL
	}
	return UIBaseURL + "?" + params.Encode(urlParams).Encode()
}

// ToAPIParams maps UI query parameters back to the API vocabulary. Lossy by
// design: casing transforms do not invert and frm is reconstructed from
// page*size only when both parse.
func ToAPIParams(urlParams map[string]any) map[string]any {
	apiParams := make(map[string]any, len(urlParams))
	for key, rawValue := range urlParams {
		apiKey := key
		if mk, ok := urlToAPIParam[key]; ok {
			apiKey = mk
		}
		var value any
		switch v := rawValue.(type) {
		case []any:
			if lst := params.CleanList(v); lst != nil {
				value = lst
			}
		default:
			value = params.CleanScalar(rawValue)
		}
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			switch apiKey {
			case "trend_interval":
				value = strings.ToLower(s)
			case "lens", "sub_lens":
				value = formatLens(s)
			}
		}
		apiParams[apiKey] = value
	}

	if raw, ok := apiParams["frm"]; ok {
		page, okPage := parseInt(raw)
		size, okSize := parseInt(apiParams["size"])
		if okPage && okSize && size != 0 {
			apiParams["frm"] = (page - 1) * size
		} else {
			delete(apiParams, "frm")
		}
	}
	return apiParams
}

// ParseURL extracts API parameters from a full UI deep-link. Repeated query
// keys become lists; single values stay scalar.
func ParseURL(raw string) (map[string]any, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	query := parsed.Query()
	flattened := make(map[string]any, len(query))
	for key, values := range query {
		if len(values) > 1 {
			list := make([]any, 0, len(values))
			for _, v := range values {
				list = append(list, v)
			}
			flattened[key] = list
		} else if len(values) == 1 {
			flattened[key] = values[0]
		}
	}
	return ToAPIParams(flattened), nil
}
