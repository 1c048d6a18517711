// Package server exposes the ops HTTP surface of the long-running service: health probes,
// Prometheus metrics and catalog cache maintenance.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/health"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/matching"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/middleware"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/products"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

type Cache interface {
	Rebuild(ctx context.Context) error
	Stats() matching.CacheStats
}

type Summarizer interface {
	Summary(ctx context.Context) (*products.Summary, error)
}

type Config struct {
	AppName      string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	echo    *echo.Echo
	cfg     Config
	cache   Cache
	summary Summarizer
	logger  ectologger.Logger
}

func New(cfg Config, logger ectologger.Logger, checker *health.Checker, cache Cache, summary Summarizer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	s := &Server{
		echo:    e,
		cfg:     cfg,
		cache:   cache,
		summary: summary,
		logger:  logger,
	}

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/cache/stats", s.cacheStats)
	e.POST("/cache/rebuild", s.rebuildCache)
	e.GET("/products/summary", s.productSummary)
	return s
}

// Handler exposes the router for in-process requests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens in the background; a listener failure is logged.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	go func() {
		if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Ops server stopped")
		}
	}()
	s.logger.WithContext(ctx).WithField("port", s.cfg.Port).Info("Ops server listening")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) cacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cache.Stats())
}

func (s *Server) rebuildCache(c echo.Context) error {
	if err := s.cache.Rebuild(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.cache.Stats())
}

func (s *Server) productSummary(c echo.Context) error {
	summary, err := s.summary.Summary(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
