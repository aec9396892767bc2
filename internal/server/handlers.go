package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cfpblens/cfpblens/internal/app"
)

func (s *Server) handleSearch(c echo.Context) error {
	var req app.SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.Sort == "" {
		req.Sort = "relevance_desc"
	}
	env, err := s.Svc.Search(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, env)
}

func (s *Server) handleTrends(c echo.Context) error {
	var req app.TrendsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	env, err := s.Svc.Trends(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, env)
}

func (s *Server) handleGeo(c echo.Context) error {
	var filters app.Filters
	if err := c.Bind(&filters); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	env, err := s.Svc.Geo(c.Request().Context(), filters)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, env)
}

func (s *Server) handleDocument(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "complaint id is required")
	}
	env, err := s.Svc.Document(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, env)
}

func (s *Server) handleSuggest(c echo.Context) error {
	size := 0
	if raw := c.QueryParam("size"); raw != "" {
		if err := echo.QueryParamsBinder(c).Int("size", &size).BindError(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "size must be an integer")
		}
	}
	field := c.QueryParam("field")
	if field != "company" && field != "zip_code" {
		return echo.NewHTTPError(http.StatusBadRequest, "field must be company or zip_code")
	}
	env, err := s.Svc.Suggest(c.Request().Context(), field, c.QueryParam("text"), size)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, env)
}

func (s *Server) handleDashboardURL(c echo.Context) error {
	var req app.DashboardRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"url": s.Svc.DashboardURL(req)})
}

func (s *Server) handleOverallSignals(c echo.Context) error {
	var req app.SignalsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := s.Svc.OverallSignals(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRankGroups(c echo.Context) error {
	var req app.GroupRankRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Group != "product" && req.Group != "issue" {
		return echo.NewHTTPError(http.StatusBadRequest, "group must be product or issue")
	}
	resp, err := s.Svc.RankGroupSpikes(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRankCompanies(c echo.Context) error {
	var req app.CompanyRankRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := s.Svc.RankCompanySpikes(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleScreenshot(c echo.Context) error {
	var req app.ScreenshotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	encoded, err := s.Svc.CaptureChart(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrScreenshotUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"image_base64": encoded,
		"media_type":   "image/png",
	})
}
