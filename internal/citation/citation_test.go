package citation

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

var today = time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)

func queryOf(t *testing.T, raw string) url.Values {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return parsed.Query()
}

func TestSearchCitation(t *testing.T) {
	t.Parallel()
	hits := 1234
	got := Generate(Request{
		Context:   "search",
		Filters:   map[string]any{"search_term": "mortgage", "state": []any{"CA"}, "size": 25},
		TotalHits: &hits,
		Today:     today,
	})
	if len(got) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(got))
	}
	if got[0].Type != "search_results" {
		t.Fatalf("type = %q", got[0].Type)
	}
	if !strings.Contains(got[0].Description, "1234") {
		t.Fatalf("description = %q", got[0].Description)
	}
	q := queryOf(t, got[0].URL)
	if q.Get("tab") != "List" || q.Get("searchText") != "mortgage" {
		t.Fatalf("url = %q", got[0].URL)
	}
	// Tool-only knobs never leak into the verification link.
	if q.Has("size") {
		t.Fatalf("size leaked into citation url: %q", got[0].URL)
	}
}

func TestTrendsCitationsIncludeCompanionList(t *testing.T) {
	t.Parallel()
	got := Generate(Request{
		Context: "trends",
		Filters: map[string]any{"product": []any{"Mortgage"}},
		Lens:    "product",
		Today:   today,
	})
	if len(got) != 2 {
		t.Fatalf("expected trends + list citations, got %d", len(got))
	}
	if got[0].Type != "trends_chart" || got[1].Type != "search_results" {
		t.Fatalf("types = %q, %q", got[0].Type, got[1].Type)
	}
	q := queryOf(t, got[0].URL)
	if q.Get("tab") != "Trends" || q.Get("lens") != "product" || q.Get("chartType") != "line" {
		t.Fatalf("trends url = %q", got[0].URL)
	}
	if q.Get("dateInterval") != "Month" {
		t.Fatalf("dateInterval = %q", q.Get("dateInterval"))
	}
	listQ := queryOf(t, got[1].URL)
	if listQ.Get("tab") != "List" || listQ.Get("product") != "Mortgage" {
		t.Fatalf("list url = %q", got[1].URL)
	}
}

func TestGeoCitation(t *testing.T) {
	t.Parallel()
	got := Generate(Request{
		Context: "geo",
		Filters: map[string]any{"state": []any{"NY"}},
		Today:   today,
	})
	if len(got) != 2 {
		t.Fatalf("expected map + list citations, got %d", len(got))
	}
	if q := queryOf(t, got[0].URL); q.Get("tab") != "Map" {
		t.Fatalf("map url = %q", got[0].URL)
	}
}

func TestDocumentCitationDegradesToListPointer(t *testing.T) {
	t.Parallel()
	got := Generate(Request{Context: "document", ComplaintID: "7654321", Today: today})
	if len(got) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(got))
	}
	if !strings.Contains(got[0].Description, "7654321") {
		t.Fatalf("description = %q", got[0].Description)
	}
	if !strings.Contains(got[0].URL, "tab=List") {
		t.Fatalf("url = %q", got[0].URL)
	}
}

func TestCitationMatchesQueryFilters(t *testing.T) {
	t.Parallel()
	filters := map[string]any{
		"company":           []any{"Acme Bank"},
		"date_received_min": "2024-01-01",
		"date_received_max": "2024-06-30",
	}
	got := Generate(Request{Context: "search", Filters: filters, Today: today})
	q := queryOf(t, got[0].URL)
	if q.Get("company") != "Acme Bank" {
		t.Fatalf("company = %q", q.Get("company"))
	}
	if q.Get("date_received_min") != "2024-01-01" || q.Get("date_received_max") != "2024-06-30" {
		t.Fatalf("dates = %q / %q", q.Get("date_received_min"), q.Get("date_received_max"))
	}
}
