// Package server exposes the complaint tools as a REST API. Every route is a
// thin binding over the same app.Service the MCP surface uses.
package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cfpblens/cfpblens/config"
	"github.com/cfpblens/cfpblens/internal/app"
	"github.com/cfpblens/cfpblens/internal/cfpb"
	"github.com/cfpblens/cfpblens/internal/ratelimit"
)

// Server carries the REST surface dependencies.
type Server struct {
	Svc     *app.Service
	Cfg     *config.Config
	Limiter ratelimit.Limiter
	Logger  *log.Logger
}

// New builds the REST server around a service.
func New(svc *app.Service, cfg *config.Config, limiter ratelimit.Limiter, logger *log.Logger) *Server {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	return &Server{Svc: svc, Cfg: cfg, Limiter: limiter, Logger: logger}
}

// Echo assembles the routed echo instance. Split out from Run so tests can
// drive it with httptest.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
	}))
	e.Use(s.auditMiddleware())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	registerDocs(e)

	api := e.Group("/api")
	api.Use(s.authMiddleware())
	api.Use(s.rateLimitMiddleware())

	api.GET("/complaints", s.handleSearch)
	api.GET("/trends", s.handleTrends)
	api.GET("/states", s.handleGeo)
	api.GET("/complaints/:id", s.handleDocument)
	api.GET("/suggest", s.handleSuggest)
	api.GET("/dashboard-url", s.handleDashboardURL)
	api.GET("/signals/overall", s.handleOverallSignals)
	api.GET("/signals/groups", s.handleRankGroups)
	api.GET("/signals/companies", s.handleRankCompanies)
	api.GET("/screenshot", s.handleScreenshot)

	return e
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	e := s.Echo()
	addr := s.Cfg.Server.Address
	s.Logger.Printf("listening on %s", addr)
	return e.Start(addr)
}

// errorHandler renders every failure as structured JSON and logs it. Errors
// the upstream complaint API returned keep their original status and body so
// callers can act on the upstream's own validation messages.
func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var detail string

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	} else if apiErr, ok := asAPIError(err); ok {
		code = apiErr.StatusCode
		msg = "upstream error"
		detail = apiErr.Body
	}

	req := c.Request()
	s.Logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
	if !c.Response().Committed {
		body := map[string]any{"error": msg}
		if detail != "" {
			body["detail"] = detail
		}
		_ = c.JSON(code, body)
	}
}

func asAPIError(err error) (*cfpb.APIError, bool) {
	var apiErr *cfpb.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
