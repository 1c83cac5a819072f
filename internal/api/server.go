// Package api serves an OpenAI-compatible HTTP surface over a generation
// pipeline.
package api

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/metrics"
	"github.com/samcharles93/mospeada/internal/pipeline"
)

// Generator runs one generation request. *pipeline.Pipeline implements it.
type Generator interface {
	Run(ctx context.Context, req pipeline.Request, onText pipeline.OnText) (pipeline.Result, error)
}

// Options configures a Server.
type Options struct {
	ModelID string
	Metrics *metrics.Metrics
	Logger  logger.Logger
	// RateLimit is the sustained requests per second across all clients.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int
	// Clock and Seed default to time.Now and a random seed per request.
	Clock func() time.Time
	Seed  func() uint64
}

type Server struct {
	gen     Generator
	modelID string
	metrics *metrics.Metrics
	log     logger.Logger
	limiter *rate.Limiter
	clock   func() time.Time
	seed    func() uint64
	started time.Time
}

func NewServer(gen Generator, opts Options) *Server {
	if opts.ModelID == "" {
		opts.ModelID = "mospeada"
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	s := &Server{
		gen:     gen,
		modelID: opts.ModelID,
		metrics: opts.Metrics,
		log:     opts.Logger,
		clock:   time.Now,
		seed:    rand.Uint64,
	}
	if opts.Clock != nil {
		s.clock = opts.Clock
	}
	if opts.Seed != nil {
		s.seed = opts.Seed
	}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.RateBurst, 1))
	}
	s.started = s.clock()
	return s
}

// Register installs middleware and routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(s.requestID)
	e.Use(s.observe)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
	e.GET("/v1/models", s.handleListModels)

	e.POST("/v1/chat/completions", s.handleChatCompletions, s.rateLimit)
	e.POST("/v1/completions", s.handleCompletions, s.rateLimit)
}

// Echo returns a new echo instance with the server registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	s.Register(e)
	return e
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string, readHeaderTimeout time.Duration) error {
	s.log.Info("starting server", "address", addr, "model", s.modelID)
	sc := echo.StartConfig{
		Address: addr,
		BeforeServeFunc: func(srv *http.Server) error {
			srv.ReadHeaderTimeout = readHeaderTimeout
			return nil
		},
	}
	return sc.Start(ctx, s.Echo())
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"model":          s.modelID,
		"uptime_seconds": int64(s.clock().Sub(s.started).Seconds()),
	})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleListModels(c *echo.Context) error {
	return c.JSON(http.StatusOK, ModelList{
		Object: "list",
		Data: []ModelInfo{{
			ID:      s.modelID,
			Object:  "model",
			Created: s.started.Unix(),
			OwnedBy: "local",
		}},
	})
}

func (s *Server) modelName(requested string) string {
	if requested != "" {
		return requested
	}
	return s.modelID
}
