package app

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

// fakeUpstream records every query and replays canned payloads. Trends
// payloads are served in call order, so pipeline tests can hand back a
// different series per company.
type fakeUpstream struct {
	searchQueries []url.Values
	trendsQueries []url.Values
	geoQueries    []url.Values

	searchPayload map[string]any
	searchErr     error
	trendsPayload []map[string]any
	trendsErr     []error
	geoPayload    map[string]any
	docPayload    map[string]any
	suggestions   []string
}

func (f *fakeUpstream) Search(_ context.Context, query url.Values) (map[string]any, error) {
	f.searchQueries = append(f.searchQueries, query)
	return f.searchPayload, f.searchErr
}

func (f *fakeUpstream) Trends(_ context.Context, query url.Values) (map[string]any, error) {
	f.trendsQueries = append(f.trendsQueries, query)
	i := len(f.trendsQueries) - 1
	var err error
	if i < len(f.trendsErr) {
		err = f.trendsErr[i]
	}
	var payload map[string]any
	if i < len(f.trendsPayload) {
		payload = f.trendsPayload[i]
	}
	return payload, err
}

func (f *fakeUpstream) GeoStates(_ context.Context, query url.Values) (map[string]any, error) {
	f.geoQueries = append(f.geoQueries, query)
	return f.geoPayload, nil
}

func (f *fakeUpstream) Suggest(_ context.Context, field, text string, size int) ([]string, error) {
	return f.suggestions, nil
}

func (f *fakeUpstream) Document(_ context.Context, complaintID string) (map[string]any, error) {
	return f.docPayload, nil
}

func fixedNow() time.Time {
	return time.Date(2025, time.December, 15, 10, 0, 0, 0, time.UTC)
}

func newTestService(up *fakeUpstream) *Service {
	return &Service{Upstream: up, Now: fixedNow}
}

func TestSearchPrunesAndCites(t *testing.T) {
	t.Parallel()
	up := &fakeUpstream{searchPayload: map[string]any{
		"hits": map[string]any{"total": map[string]any{"value": float64(1234)}},
	}}
	svc := newTestService(up)

	env, err := svc.Search(context.Background(), SearchRequest{
		Filters: Filters{
			SearchTerm: "mortgage",
			Company:    []string{"Big Bank", ""},
			State:      []string{},
		},
		Size: 25,
		Sort: "created_date_desc",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	q := up.searchQueries[0]
	if got := q.Get("search_term"); got != "mortgage" {
		t.Errorf("search_term = %q", got)
	}
	if got := q["company"]; len(got) != 1 || got[0] != "Big Bank" {
		t.Errorf("company = %v, want the empty element dropped", got)
	}
	if _, present := q["state"]; present {
		t.Error("empty state list forwarded upstream")
	}
	if got := q.Get("no_aggs"); got != "false" {
		t.Errorf("no_aggs = %q, want false", got)
	}
	if got := q.Get("size"); got != "25" {
		t.Errorf("size = %q", got)
	}

	if len(env.Citations) != 1 {
		t.Fatalf("citations = %d, want 1", len(env.Citations))
	}
	c := env.Citations[0]
	if !strings.Contains(c.URL, "tab=List") {
		t.Errorf("citation URL %q missing List tab", c.URL)
	}
	if !strings.Contains(c.Description, "1234") {
		t.Errorf("citation description %q missing hit count", c.Description)
	}
}

func TestSearchZeroSizeForwarded(t *testing.T) {
	t.Parallel()
	up := &fakeUpstream{searchPayload: map[string]any{}}
	svc := newTestService(up)

	if _, err := svc.Search(context.Background(), SearchRequest{Size: 0}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := up.searchQueries[0].Get("size"); got != "0" {
		t.Errorf("size = %q, want explicit 0", got)
	}
}

func TestTrendsSubLensDepthOnlyWithSubLens(t *testing.T) {
	t.Parallel()
	up := &fakeUpstream{trendsPayload: []map[string]any{{}, {}}}
	svc := newTestService(up)

	if _, err := svc.Trends(context.Background(), TrendsRequest{}); err != nil {
		t.Fatalf("Trends: %v", err)
	}
	q := up.trendsQueries[0]
	if _, present := q["sub_lens_depth"]; present {
		t.Error("sub_lens_depth forwarded without a sub_lens")
	}
	if got := q.Get("lens"); got != "overview" {
		t.Errorf("lens = %q, want default overview", got)
	}

	if _, err := svc.Trends(context.Background(), TrendsRequest{Lens: "product", SubLens: "issue"}); err != nil {
		t.Fatalf("Trends: %v", err)
	}
	q = up.trendsQueries[1]
	if got := q.Get("sub_lens_depth"); got != "5" {
		t.Errorf("sub_lens_depth = %q, want 5", got)
	}
}

func TestSuggestValidatesField(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeUpstream{suggestions: []string{"Big Bank"}})

	if _, err := svc.Suggest(context.Background(), "product", "mort", 5); err == nil {
		t.Fatal("expected error for unsupported suggest field")
	}
	env, err := svc.Suggest(context.Background(), "company", "big", 5)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if env.Citations == nil || len(env.Citations) != 0 {
		t.Errorf("suggest citations = %v, want empty non-nil slice", env.Citations)
	}
}

func TestDocumentRequiresID(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeUpstream{docPayload: map[string]any{"_id": "1234567"}})

	if _, err := svc.Document(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty complaint id")
	}
	env, err := svc.Document(context.Background(), "1234567")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if len(env.Citations) != 1 || !strings.Contains(env.Citations[0].Description, "1234567") {
		t.Errorf("document citation = %+v", env.Citations)
	}
}

func TestDashboardURLDefaultsDates(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeUpstream{})

	got := svc.DashboardURL(DashboardRequest{
		Filters: Filters{SearchTerm: "mortgage"},
		Tab:     "Trends",
	})
	for _, want := range []string{"searchText=mortgage", "tab=Trends", "date_received_min=2011-12-01", "date_received_max=2025-10-31"} {
		if !strings.Contains(got, want) {
			t.Errorf("url %q missing %q", got, want)
		}
	}
}

func TestCaptureChartWithoutBackend(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeUpstream{})

	if _, err := svc.CaptureChart(context.Background(), ScreenshotRequest{}); err != ErrScreenshotUnavailable {
		t.Fatalf("err = %v, want ErrScreenshotUnavailable", err)
	}
}
