package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mospeada/internal/logger"
)

const headerRequestID = "X-Request-Id"

var knownRoutes = map[string]bool{
	"/healthz":             true,
	"/metrics":             true,
	"/v1/models":           true,
	"/v1/chat/completions": true,
	"/v1/completions":      true,
}

// requestID propagates or assigns X-Request-Id and attaches a request-scoped
// logger to the request context.
func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		req := c.Request()
		id := req.Header.Get(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Response().Header().Set(headerRequestID, id)
		log := s.log.With("request_id", id)
		c.SetRequest(req.WithContext(logger.WithContext(req.Context(), log)))
		return next(c)
	}
}

// observe logs each request and records it in the HTTP metrics.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		s.metrics.Inflight(1)
		err := next(c)
		s.metrics.Inflight(-1)

		status := http.StatusOK
		if res, uerr := echo.UnwrapResponse(c.Response()); uerr == nil && res.Status != 0 {
			status = res.Status
		}
		if err != nil {
			status = http.StatusInternalServerError
			if sc, ok := err.(interface{ StatusCode() int }); ok {
				status = sc.StatusCode()
			}
		}

		req := c.Request()
		path := req.URL.Path
		if !knownRoutes[path] {
			path = "other"
		}
		d := time.Since(start)
		s.metrics.ObserveHTTP(path, req.Method, status, d)
		logger.FromContext(req.Context()).Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"duration", d,
		)
		return err
	}
}

// rateLimit rejects requests with 429 once the shared token bucket is empty.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.RateLimited()
			c.Response().Header().Set("Retry-After", "1")
			return writeError(c, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
		}
		return next(c)
	}
}
