package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cfpblens/cfpblens/internal/app"
)

type stubUpstream struct {
	lastSearch url.Values
}

func (s *stubUpstream) Search(_ context.Context, query url.Values) (map[string]any, error) {
	s.lastSearch = query
	return map[string]any{
		"hits": map[string]any{"total": map[string]any{"value": float64(2)}},
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

func runFrames(t *testing.T, srv *Server, frames ...string) []rpcResp {
	t.Helper()
	in := strings.NewReader(strings.Join(frames, "\n"))
	var out bytes.Buffer
	if err := srv.Serve(in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var resps []rpcResp
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r rpcResp
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		resps = append(resps, r)
	}
	return resps
}

func newTestServer(up *stubUpstream) *Server {
	svc := &app.Service{
		Upstream: up,
		Now: func() time.Time {
			return time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC)
		},
	}
	return New(svc, nil)
}

func TestToolsList(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{})

	resps := runFrames(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if len(resps) != 1 {
		t.Fatalf("responses = %d", len(resps))
	}
	tools, ok := resps[0].Result["tools"].([]any)
	if !ok {
		t.Fatalf("result = %v", resps[0].Result)
	}
	if len(tools) != 10 {
		t.Errorf("advertised tools = %d, want 10", len(tools))
	}
	names := map[string]bool{}
	for _, raw := range tools {
		m := raw.(map[string]any)
		names[m["name"].(string)] = true
	}
	for _, want := range []string{"search_complaints", "rank_company_spikes", "generate_cfpb_dashboard_url"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}

func TestToolsCallSearch(t *testing.T) {
	t.Parallel()
	up := &stubUpstream{}
	srv := newTestServer(up)

	frame := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"search_complaints","arguments":{"search_term":"mortgage","company":"Big Bank","size":5}}}`
	resps := runFrames(t, srv, frame)
	if len(resps) != 1 || resps[0].Error != nil {
		t.Fatalf("responses = %+v", resps)
	}

	if got := up.lastSearch.Get("search_term"); got != "mortgage" {
		t.Errorf("search_term = %q", got)
	}
	if got := up.lastSearch["company"]; len(got) != 1 || got[0] != "Big Bank" {
		t.Errorf("company = %v, want bare string promoted to a list", got)
	}
	if got := up.lastSearch.Get("sort"); got != "relevance_desc" {
		t.Errorf("sort = %q, want default relevance_desc", got)
	}

	if _, ok := resps[0].Result["citations"]; !ok {
		t.Error("search result missing citations")
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{})

	resps := runFrames(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)
	if len(resps) != 1 || resps[0].Error == nil {
		t.Fatalf("responses = %+v, want an rpc error", resps)
	}
	if !strings.Contains(resps[0].Error.Message, "unknown tool") {
		t.Errorf("error = %q", resps[0].Error.Message)
	}
}

func TestUnknownMethod(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{})

	resps := runFrames(t, srv, `{"jsonrpc":"2.0","id":4,"method":"resources/list"}`)
	if len(resps) != 1 || resps[0].Error == nil {
		t.Fatalf("responses = %+v, want an rpc error", resps)
	}
}

func TestToolsCallDashboardURL(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&stubUpstream{})

	frame := `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"generate_cfpb_dashboard_url","arguments":{"search_term":"late fees","tab":"Trends"}}}`
	resps := runFrames(t, srv, frame)
	if len(resps) != 1 || resps[0].Error != nil {
		t.Fatalf("responses = %+v", resps)
	}
	u, _ := resps[0].Result["url"].(string)
	for _, want := range []string{"searchText=late+fees", "tab=Trends", "date_received_min=2011-12-01"} {
		if !strings.Contains(u, want) {
			t.Errorf("url %q missing %q", u, want)
		}
	}
}
