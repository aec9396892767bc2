package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cfpblens/cfpblens/mcp"
)

// toolRoutes maps each advertised tool to its REST path. The catalog is the
// single contract; this table only pins where each tool lives on the HTTP
// surface.
var toolRoutes = map[string]string{
	"search_complaints":             "/api/complaints",
	"list_complaint_trends":         "/api/trends",
	"get_state_aggregations":        "/api/states",
	"get_complaint_document":        "/api/complaints/{id}",
	"suggest_filter_values":         "/api/suggest",
	"generate_cfpb_dashboard_url":   "/api/dashboard-url",
	"get_overall_trend_signals":     "/api/signals/overall",
	"rank_group_spikes":             "/api/signals/groups",
	"rank_company_spikes":           "/api/signals/companies",
	"capture_cfpb_chart_screenshot": "/api/screenshot",
}

// registerDocs serves the generated OpenAPI document and a ReDoc page.
func registerDocs(e *echo.Echo) {
	doc := buildOpenAPI(mcp.Catalog())
	e.GET("/api/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, doc)
	})

	e.GET("/api/docs", func(c echo.Context) error {
		html := `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>cfpblens API Docs</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>body{margin:0;padding:0;} .redoc-wrap{height:100vh;}</style>
  </head>
  <body>
    <div id="redoc-container" class="redoc-wrap"></div>
    <script src="https://cdn.jsdelivr.net/npm/redoc/bundles/redoc.standalone.js"></script>
    <script>
      Redoc.init('/api/openapi.json', {}, document.getElementById('redoc-container'))
    </script>
  </body>
  </html>`
		return c.HTML(http.StatusOK, html)
	})
}

// buildOpenAPI derives an OpenAPI 3 document from the tool catalog. Every
// tool argument becomes a query parameter except the complaint id, which is
// a path segment.
func buildOpenAPI(catalog []mcp.ToolDesc) map[string]any {
	paths := make(map[string]any, len(catalog))
	for _, tool := range catalog {
		route, ok := toolRoutes[tool.Name]
		if !ok {
			continue
		}

		var parameters []map[string]any
		props, _ := tool.InputSchema["properties"].(map[string]any)
		required := map[string]bool{}
		if reqList, ok := tool.InputSchema["required"].([]string); ok {
			for _, name := range reqList {
				required[name] = true
			}
		}
		for name, schema := range props {
			in := "query"
			if tool.Name == "get_complaint_document" && name == "complaint_id" {
				name, in = "id", "path"
			}
			parameters = append(parameters, map[string]any{
				"name":     name,
				"in":       in,
				"required": in == "path" || required[name],
				"schema":   schema,
			})
		}

		paths[route] = map[string]any{
			"get": map[string]any{
				"operationId": tool.Name,
				"summary":     tool.Description,
				"parameters":  parameters,
				"responses": map[string]any{
					"200": map[string]any{"description": "OK"},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "cfpblens",
			"version": "1.0.0",
			"description": "Query normalization, deep links, and trend spike " +
				"signals over the CFPB consumer complaint database.",
		},
		"paths": paths,
	}
}
