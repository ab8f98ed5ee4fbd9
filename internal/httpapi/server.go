// Package httpapi serves the cluster read API and the admin pipeline triggers.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/pipeline"
)

// Store is the read surface of the API. *db.Pool implements it.
type Store interface {
	Ping(ctx context.Context) error
	ListClusters(ctx context.Context, opts db.ClusterListOptions) ([]db.ClusterRecord, int64, error)
	GetCluster(ctx context.Context, id int64) (db.ClusterRecord, error)
	ListClusterMembers(ctx context.Context, clusterID int64) ([]db.ClusterMember, error)
	ListArticleEvidence(ctx context.Context, articleID int64) ([]db.EvidenceRecord, error)
	ArticleExists(ctx context.Context, id int64) (bool, error)
}

// Runner triggers pipeline passes. *pipeline.Service implements it.
type Runner interface {
	RunNew(ctx context.Context, ids []int64) (pipeline.RunReport, error)
	RunPending(ctx context.Context, limit int) (pipeline.RunReport, error)
	RunCategory(ctx context.Context, category string, window time.Duration, limit int) (pipeline.RunReport, error)
	ClusterByKeywords(ctx context.Context, limit int) (pipeline.KeywordResult, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RunTimeout bounds one admin-triggered pipeline pass.
	RunTimeout time.Duration
}

type Server struct {
	store  Store
	runner Runner
	logger zerolog.Logger
	opts   Options
}

func NewServer(store Store, runner Runner, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	runTimeout := opts.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}

	return &Server{
		store:  store,
		runner: runner,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			RunTimeout:      runTimeout,
		},
	}
}

// Handler builds the echo router with all routes and middleware.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			message := "http request"
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
				message = "http request failed"
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg(message)
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/clusters", s.handleClusters)
	api.GET("/clusters/:id", s.handleClusterDetail)
	api.GET("/articles/:id/evidence", s.handleArticleEvidence)

	admin := api.Group("/admin")
	admin.POST("/pipeline/run", s.handleRunNew)
	admin.POST("/pipeline/pending", s.handleRunPending)
	admin.POST("/pipeline/category/:category", s.handleRunCategory)
	admin.POST("/cluster/keywords", s.handleClusterKeywords)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil || s.runner == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("trustwire api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("trustwire api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}
