// Package trend extracts ordered time-bucket series from the nested
// aggregation payloads the CFPB API returns, and computes spike signals
// against a trailing baseline window.
//
// Aggregation sections are optionally elided upstream when empty, and
// individual buckets occasionally arrive partial. Extraction therefore
// tolerates any missing key or malformed row by skipping it; it never fails
// a whole payload.
package trend

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Point is one time bucket of a series.
type Point struct {
	Label string  `json:"label"`
	Count float64 `json:"count"`
}

// Group is one ranked-dimension entry carrying its own time series.
type Group struct {
	Group    string  `json:"group"`
	DocCount float64 `json:"doc_count"`
	Points   []Point `json:"points"`
}

// CompanyCount is one company aggregation bucket from a search payload.
type CompanyCount struct {
	Company  string `json:"company"`
	DocCount int    `json:"doc_count"`
}

func dig(payload any, keys ...string) any {
	current := payload
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

type keyedPoint struct {
	key    int64
	hasKey bool
	label  string
	count  float64
}

// OverallPoints pulls the overall date histogram out of a trends payload.
// The driver upstream names its aggregations after themselves, hence the
// double-nested dateRangeArea.dateRangeArea path. Buckets missing key,
// key_as_string, or doc_count are skipped. Result is sorted ascending by the
// numeric bucket key.
func OverallPoints(payload map[string]any) []Point {
	buckets, ok := dig(payload, "aggregations", "dateRangeArea", "dateRangeArea", "buckets").([]any)
	if !ok {
		return nil
	}

	rows := make([]keyedPoint, 0, len(buckets))
	for _, raw := range buckets {
		b, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key, okKey := asFloat(b["key"])
		label, okLabel := b["key_as_string"].(string)
		count, okCount := asFloat(b["doc_count"])
		if !okKey || !okLabel || !okCount {
			continue
		}
		rows = append(rows, keyedPoint{key: int64(key), hasKey: true, label: label, count: count})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
	return project(rows)
}

// GroupSeries pulls one sub-series per distinct value of the given dimension
// out of a trends payload queried with sub_lens=group. Each outer bucket
// carries its own trend_period histogram, sorted numerically when any bucket
// has a numeric key and lexically by label otherwise (some interval types
// only populate the string label).
func GroupSeries(payload map[string]any, group string) []Group {
	groupBuckets, ok := dig(payload, "aggregations", group, group, "buckets").([]any)
	if !ok {
		return nil
	}

	out := make([]Group, 0, len(groupBuckets))
	for _, raw := range groupBuckets {
		b, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		groupKey := b["key"]
		docCount, _ := asFloat(b["doc_count"])
		trendBuckets, ok := dig(b, "trend_period", "buckets").([]any)
		if groupKey == nil || !ok {
			continue
		}

		rows := extractKeyedPoints(trendBuckets)
		if anyNumericKey(rows) {
			sort.SliceStable(rows, func(i, j int) bool {
				if rows[i].hasKey != rows[j].hasKey {
					return rows[i].hasKey
				}
				return rows[i].key < rows[j].key
			})
		} else {
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].label < rows[j].label })
		}

		out = append(out, Group{
			Group:    fmt.Sprint(groupKey),
			DocCount: docCount,
			Points:   project(rows),
		})
	}
	return out
}

func extractKeyedPoints(trendBuckets []any) []keyedPoint {
	rows := make([]keyedPoint, 0, len(trendBuckets))
	for _, raw := range trendBuckets {
		tb, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		label, okLabel := tb["key_as_string"].(string)
		count, okCount := asFloat(tb["doc_count"])
		if !okLabel || !okCount {
			continue
		}
		row := keyedPoint{label: label, count: count}
		if key, okKey := asFloat(tb["key"]); okKey {
			row.key = int64(key)
			row.hasKey = true
		}
		rows = append(rows, row)
	}
	return rows
}

func anyNumericKey(rows []keyedPoint) bool {
	for _, r := range rows {
		if r.hasKey {
			return true
		}
	}
	return false
}

func project(rows []keyedPoint) []Point {
	points := make([]Point, 0, len(rows))
	for _, r := range rows {
		points = append(points, Point{Label: r.label, Count: r.count})
	}
	return points
}

// CompanyBuckets pulls the company aggregation out of a search payload and
// returns it ordered by document count descending. Used by the company
// ranking pipeline, which runs a zero-size search purely for this side
// output.
func CompanyBuckets(payload map[string]any) []CompanyCount {
	buckets, ok := dig(payload, "aggregations", "company", "company", "buckets").([]any)
	if !ok {
		return nil
	}

	out := make([]CompanyCount, 0, len(buckets))
	for _, raw := range buckets {
		b, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key, okKey := b["key"].(string)
		docCount, okCount := asFloat(b["doc_count"])
		if !okKey || !okCount {
			continue
		}
		out = append(out, CompanyCount{Company: key, DocCount: int(docCount)})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DocCount > out[j].DocCount })
	return out
}

// CurrentMonthPrefix returns the YYYY-MM- prefix of now in UTC.
func CurrentMonthPrefix(now time.Time) string {
	return now.UTC().Format("2006-01-")
}

// DropCurrentMonth removes points whose label starts with the current UTC
// year-month prefix. The running month is always a partial bucket and would
// read as a spurious drop in the latest data point. A zero now means
// time.Now().
func DropCurrentMonth(points []Point, now time.Time) []Point {
	if now.IsZero() {
		now = time.Now()
	}
	prefix := CurrentMonthPrefix(now)
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if strings.HasPrefix(p.Label, prefix) {
			continue
		}
		out = append(out, p)
	}
	return out
}
