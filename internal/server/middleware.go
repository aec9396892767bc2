package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cfpblens_http_requests_total",
	Help: "Handled HTTP requests by route and status.",
}, []string{"path", "status"})

// authMiddleware admits requests carrying a valid X-API-Key or a valid HS256
// bearer token, whichever schemes are configured. With neither configured
// the API is open.
func (s *Server) authMiddleware() echo.MiddlewareFunc {
	apiKey := strings.TrimSpace(s.Cfg.Auth.APIKey)
	jwtSecret := []byte(strings.TrimSpace(s.Cfg.Auth.JWTSecret))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" && len(jwtSecret) == 0 {
				return next(c)
			}
			if apiKey != "" {
				presented := c.Request().Header.Get("X-API-Key")
				if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) == 1 {
					return next(c)
				}
			}
			if len(jwtSecret) > 0 {
				if tok := bearerToken(c); tok != "" {
					parsed, err := jwt.Parse(tok, func(t *jwt.Token) (any, error) { return jwtSecret, nil },
						jwt.WithValidMethods([]string{"HS256"}))
					if err == nil && parsed.Valid {
						if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
							if sub, ok := claims["sub"].(string); ok {
								c.Set("subject", sub)
							}
						}
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid credentials")
		}
	}
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return h[7:]
	}
	return ""
}

// SignToken issues an HS256 bearer token for the configured secret. Used by
// the CLI to mint tokens for trusted callers.
func SignToken(subject string, secret []byte, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// rateLimitMiddleware throttles per caller. Authenticated callers are keyed
// by API key or token subject so one noisy client cannot consume a shared
// NAT IP's budget.
func (s *Server) rateLimitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-API-Key")
			if key == "" {
				if sub, ok := c.Get("subject").(string); ok {
					key = sub
				}
			}
			if key == "" {
				key = c.RealIP()
			}
			if !s.Limiter.Allow(c.Request().Context(), key) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

type auditRecord struct {
	RequestID string `json:"request_id"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Query     string `json:"query,omitempty"`
	Status    int    `json:"status"`
	RemoteIP  string `json:"remote_ip"`
	TookMS    int64  `json:"took_ms"`
}

// auditMiddleware tags each request with an id and writes one JSON line per
// completed request.
func (s *Server) auditMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			c.Set("request_id", requestID)

			started := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			rec := auditRecord{
				RequestID: requestID,
				Method:    c.Request().Method,
				Path:      c.Request().URL.Path,
				Query:     c.Request().URL.RawQuery,
				Status:    c.Response().Status,
				RemoteIP:  c.RealIP(),
				TookMS:    time.Since(started).Milliseconds(),
			}
			httpRequests.WithLabelValues(c.Path(), strconv.Itoa(rec.Status)).Inc()
			if line, marshalErr := json.Marshal(rec); marshalErr == nil {
				s.Logger.Printf("audit %s", line)
			}
			return nil
		}
	}
}
