// Package server exposes the memory engine over HTTP.
//
// Every API route derives a tenant scope from the X-Tenant-ID, X-User-ID
// and X-Role headers; requests without a scope are rejected before they
// reach the engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/engine"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
)

// Scope headers. Upstream auth terminates before recalld and asserts
// these; the server trusts them.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
	HeaderRole     = "X-Role"
)

// Server provides the HTTP API for recalld.
type Server struct {
	echo        *echo.Echo
	engine      *engine.Engine
	logger      *logging.Logger
	cfg         config.ServerConfig
	searchLimit int
}

// New creates a new HTTP server. searchLimit is applied to search requests
// that omit a limit; the engine itself treats a non-positive limit as an
// empty result.
func New(eng *engine.Engine, cfg config.ServerConfig, searchLimit int, logger *logging.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 9180
	}
	if searchLimit <= 0 {
		searchLimit = 10
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Underlying().Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:        e,
		engine:      eng,
		logger:      logger.Named("server"),
		cfg:         cfg,
		searchLimit: searchLimit,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/memories", s.handleWrite)
	v1.POST("/memories/search", s.handleSearch)
	v1.GET("/memories/:id", s.handleGet)
	v1.DELETE("/memories/:id", s.handleDelete)
	v1.POST("/consolidate", s.handleConsolidate)
	v1.GET("/stats", s.handleStats)
}

// scopeFrom builds the tenant scope from request headers. Validation is
// left to the engine so every path shares one failure mode.
func scopeFrom(c echo.Context) memory.Scope {
	return memory.Scope{
		TenantID: c.Request().Header.Get(HeaderTenantID),
		UserID:   c.Request().Header.Get(HeaderUserID),
		Role:     memory.Role(c.Request().Header.Get(HeaderRole)),
	}
}

// httpError maps the memory error taxonomy onto HTTP status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, memory.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, memory.ErrScopeViolation):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, memory.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, memory.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, memory.ErrDependency):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// WriteResponse is the response body for POST /api/v1/memories.
type WriteResponse struct {
	Entry *memory.Entry `json:"entry"`
}

func (s *Server) handleWrite(c echo.Context) error {
	var req engine.WriteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	entry, err := s.engine.Write(c.Request().Context(), scopeFrom(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, WriteResponse{Entry: entry})
}

// SearchRequest is the request body for POST /api/v1/memories/search.
// An omitted limit applies the server default.
type SearchRequest struct {
	Query               string   `json:"query"`
	Limit               int      `json:"limit,omitempty"`
	Namespaces          []string `json:"namespaces,omitempty"`
	Types               []string `json:"types,omitempty"`
	IncludeConsolidated bool     `json:"include_consolidated,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/memories/search.
type SearchResponse struct {
	Entries  []retrieval.ScoredEntry `json:"entries"`
	Degraded bool                    `json:"degraded"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	limit := req.Limit
	if limit == 0 {
		limit = s.searchLimit
	}
	q := retrieval.Query{
		Text:                req.Query,
		Limit:               limit,
		IncludeConsolidated: req.IncludeConsolidated,
	}
	for _, ns := range req.Namespaces {
		q.Namespaces = append(q.Namespaces, memory.Namespace(ns))
	}
	for _, mt := range req.Types {
		q.Types = append(q.Types, memory.Type(mt))
	}

	result, err := s.engine.Retrieve(c.Request().Context(), scopeFrom(c), q)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SearchResponse{Entries: result.Entries, Degraded: result.Degraded})
}

func (s *Server) handleGet(c echo.Context) error {
	entry, err := s.engine.Get(c.Request().Context(), scopeFrom(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, WriteResponse{Entry: entry})
}

func (s *Server) handleDelete(c echo.Context) error {
	if err := s.engine.Delete(c.Request().Context(), scopeFrom(c), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ConsolidateResponse is the response body for POST /api/v1/consolidate.
type ConsolidateResponse struct {
	Candidates   int `json:"candidates"`
	Consolidated int `json:"consolidated"`
	Skipped      int `json:"skipped"`
}

func (s *Server) handleConsolidate(c echo.Context) error {
	result, err := s.engine.Consolidate(c.Request().Context(), scopeFrom(c), 0)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ConsolidateResponse{
		Candidates:   result.Candidates,
		Consolidated: result.Consolidated,
		Skipped:      result.Skipped,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.engine.Stats(c.Request().Context(), scopeFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
