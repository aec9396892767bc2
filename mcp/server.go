// Package mcp exposes the complaint tools over stdio JSON-RPC for MCP
// clients. The server holds no state of its own; every call funnels into the
// shared app.Service, so the MCP and REST surfaces cannot drift apart.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cfpblens/cfpblens/internal/app"
)

// ---------- JSON-RPC skeleton ----------

type rpcReq struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}
type rpcResp struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *rpcError      `json:"error,omitempty"`
}
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeResp(w io.Writer, id any, result map[string]any, err error) {
	resp := rpcResp{JSONRPC: "2.0", ID: id}
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
	} else {
		resp.Result = result
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(resp)
}

// Server answers tools/list and tools/call over a stdio JSON-RPC loop.
type Server struct {
	Svc     *app.Service
	Logger  *log.Logger
	Timeout time.Duration

	tools []ToolDesc
}

// New wires the tool surface around a service.
func New(svc *app.Service, logger *log.Logger) *Server {
	return &Server{
		Svc:     svc,
		Logger:  logger,
		Timeout: 120 * time.Second,
		tools:   Catalog(),
	}
}

// callTool dispatches to handler functions.
func (srv *Server) callTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case "search_complaints":
		return srv.tSearch(ctx, args)
	case "list_complaint_trends":
		return srv.tTrends(ctx, args)
	case "get_state_aggregations":
		return srv.tGeo(ctx, args)
	case "get_complaint_document":
		return srv.tDocument(ctx, args)
	case "suggest_filter_values":
		return srv.tSuggest(ctx, args)
	case "generate_cfpb_dashboard_url":
		return srv.tDashboardURL(args)
	case "get_overall_trend_signals":
		return srv.tOverallSignals(ctx, args)
	case "rank_group_spikes":
		return srv.tRankGroups(ctx, args)
	case "rank_company_spikes":
		return srv.tRankCompanies(ctx, args)
	case "capture_cfpb_chart_screenshot":
		return srv.tScreenshot(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// ---------- Tool handlers ----------

func (srv *Server) tSearch(ctx context.Context, args map[string]any) (map[string]any, error) {
	req := app.SearchRequest{
		Filters:     filtersFromArgs(args),
		Size:        asInt(args["size"]),
		From:        asInt(args["from_index"]),
		Sort:        str(args["sort"]),
		SearchAfter: str(args["search_after"]),
		NoHighlight: asBool(args["no_highlight"]),
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.Sort == "" {
		req.Sort = "relevance_desc"
	}
	env, err := srv.Svc.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return envelope(env), nil
}

func (srv *Server) tTrends(ctx context.Context, args map[string]any) (map[string]any, error) {
	env, err := srv.Svc.Trends(ctx, app.TrendsRequest{
		Filters:       filtersFromArgs(args),
		Lens:          str(args["lens"]),
		TrendInterval: str(args["trend_interval"]),
		TrendDepth:    asInt(args["trend_depth"]),
		SubLens:       str(args["sub_lens"]),
		SubLensDepth:  asInt(args["sub_lens_depth"]),
		Focus:         str(args["focus"]),
	})
	if err != nil {
		return nil, err
	}
	return envelope(env), nil
}

func (srv *Server) tGeo(ctx context.Context, args map[string]any) (map[string]any, error) {
	env, err := srv.Svc.Geo(ctx, filtersFromArgs(args))
	if err != nil {
		return nil, err
	}
	return envelope(env), nil
}

func (srv *Server) tDocument(ctx context.Context, args map[string]any) (map[string]any, error) {
	env, err := srv.Svc.Document(ctx, str(args["complaint_id"]))
	if err != nil {
		return nil, err
	}
	return envelope(env), nil
}

func (srv *Server) tSuggest(ctx context.Context, args map[string]any) (map[string]any, error) {
	env, err := srv.Svc.Suggest(ctx, str(args["field"]), str(args["text"]), asInt(args["size"]))
	if err != nil {
		return nil, err
	}
	return envelope(env), nil
}

func (srv *Server) tDashboardURL(args map[string]any) (map[string]any, error) {
	url := srv.Svc.DashboardURL(app.DashboardRequest{
		Filters:      filtersFromArgs(args),
		Tab:          str(args["tab"]),
		Lens:         str(args["lens"]),
		SubLens:      str(args["sub_lens"]),
		ChartType:    str(args["chart_type"]),
		DateInterval: str(args["date_interval"]),
	})
	return map[string]any{"url": url}, nil
}

func (srv *Server) tOverallSignals(ctx context.Context, args map[string]any) (map[string]any, error) {
	resp, err := srv.Svc.OverallSignals(ctx, app.SignalsRequest{
		Filters:         filtersFromArgs(args),
		Lens:            str(args["lens"]),
		TrendInterval:   str(args["trend_interval"]),
		TrendDepth:      asInt(args["trend_depth"]),
		BaselineWindow:  asInt(args["baseline_window"]),
		MinBaselineMean: asFloat(args["min_baseline_mean"]),
	})
	if err != nil {
		return nil, err
	}
	return asMap(resp)
}

func (srv *Server) tRankGroups(ctx context.Context, args map[string]any) (map[string]any, error) {
	resp, err := srv.Svc.RankGroupSpikes(ctx, app.GroupRankRequest{
		Filters:         filtersFromArgs(args),
		Group:           str(args["group"]),
		Lens:            str(args["lens"]),
		TrendInterval:   str(args["trend_interval"]),
		TrendDepth:      asInt(args["trend_depth"]),
		SubLensDepth:    asInt(args["sub_lens_depth"]),
		TopN:            asInt(args["top_n"]),
		BaselineWindow:  asInt(args["baseline_window"]),
		MinBaselineMean: asFloat(args["min_baseline_mean"]),
	})
	if err != nil {
		return nil, err
	}
	return asMap(resp)
}

func (srv *Server) tRankCompanies(ctx context.Context, args map[string]any) (map[string]any, error) {
	resp, err := srv.Svc.RankCompanySpikes(ctx, app.CompanyRankRequest{
		Filters:         filtersFromArgs(args),
		Lens:            str(args["lens"]),
		TrendInterval:   str(args["trend_interval"]),
		TrendDepth:      asInt(args["trend_depth"]),
		TopN:            asInt(args["top_n"]),
		BaselineWindow:  asInt(args["baseline_window"]),
		MinBaselineMean: asFloat(args["min_baseline_mean"]),
	})
	if err != nil {
		return nil, err
	}
	return asMap(resp)
}

func (srv *Server) tScreenshot(ctx context.Context, args map[string]any) (map[string]any, error) {
	encoded, err := srv.Svc.CaptureChart(ctx, app.ScreenshotRequest{
		Filters:      filtersFromArgs(args),
		Lens:         str(args["lens"]),
		ChartType:    str(args["chart_type"]),
		DateInterval: str(args["date_interval"]),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"image_base64": encoded, "media_type": "image/png"}, nil
}

// ---------- helpers ----------

// filtersFromArgs pulls the shared filter bag out of raw tool arguments.
// A bare string for a list-valued filter is accepted as a one-element list.
func filtersFromArgs(args map[string]any) app.Filters {
	return app.Filters{
		SearchTerm:              str(args["search_term"]),
		Field:                   str(args["field"]),
		Company:                 asStrSlice(args["company"]),
		CompanyPublicResponse:   asStrSlice(args["company_public_response"]),
		CompanyResponse:         asStrSlice(args["company_response"]),
		ConsumerConsentProvided: asStrSlice(args["consumer_consent_provided"]),
		ConsumerDisputed:        asStrSlice(args["consumer_disputed"]),
		DateReceivedMin:         str(args["date_received_min"]),
		DateReceivedMax:         str(args["date_received_max"]),
		CompanyReceivedMin:      str(args["company_received_min"]),
		CompanyReceivedMax:      str(args["company_received_max"]),
		HasNarrative:            asStrSlice(args["has_narrative"]),
		Issue:                   asStrSlice(args["issue"]),
		Product:                 asStrSlice(args["product"]),
		State:                   asStrSlice(args["state"]),
		SubmittedVia:            asStrSlice(args["submitted_via"]),
		Tags:                    asStrSlice(args["tags"]),
		Timely:                  asStrSlice(args["timely"]),
		ZipCode:                 asStrSlice(args["zip_code"]),
	}
}

func envelope(env *app.Envelope) map[string]any {
	return map[string]any{"data": env.Data, "citations": env.Citations}
}

// asMap round-trips a typed response through JSON so every tool returns the
// same generic result shape.
func asMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func str(v any) string { s, _ := v.(string); return s }

func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	case json.Number:
		i, _ := x.Int64()
		return int(i)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case json.Number:
		f, _ := x.Float64()
		return f
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "true" || x == "True"
	default:
		return false
	}
}

func asStrSlice(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		return x
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ---------- stdio loop ----------

// Serve runs the stdio JSON-RPC loop until in is exhausted.
func (srv *Server) Serve(in io.Reader, out io.Writer) error {
	rd := bufio.NewReader(in)
	dec := json.NewDecoder(rd)
	for {
		var req rpcReq
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// skip malformed frames rather than dying mid-session
			continue
		}

		switch req.Method {
		case "tools/list":
			writeResp(out, req.ID, map[string]any{"tools": srv.tools}, nil)

		case "tools/call":
			name := ""
			args := map[string]any{}
			if v, ok := req.Params["name"].(string); ok {
				name = v
			}
			if m, ok := req.Params["arguments"].(map[string]any); ok {
				args = m
			}
			started := time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), srv.Timeout)
			res, err := srv.callTool(ctx, name, args)
			cancel()
			if srv.Logger != nil {
				srv.Logger.Printf("[MCP] %s took=%s err=%v", name, time.Since(started).Round(time.Millisecond), err)
			}
			writeResp(out, req.ID, res, err)

		default:
			writeResp(out, req.ID, nil, fmt.Errorf("unknown method: %s", req.Method))
		}
	}
}
