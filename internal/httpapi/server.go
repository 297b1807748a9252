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

	"horse.fit/finnews/internal/alert"
	"horse.fit/finnews/internal/db"
	"horse.fit/finnews/internal/globaltime"
	"horse.fit/finnews/internal/scheduler"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// DefaultInterval is used when a start request carries no interval.
	DefaultInterval time.Duration
}

type Server struct {
	pool   *db.Pool
	sched  *scheduler.Scheduler
	hub    *alert.Hub
	logger zerolog.Logger
	opts   Options
}

func NewServer(pool *db.Pool, sched *scheduler.Scheduler, hub *alert.Hub, logger zerolog.Logger, opts Options) *Server {
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
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	defaultInterval := opts.DefaultInterval
	if defaultInterval <= 0 {
		defaultInterval = 60 * time.Second
	}

	return &Server{
		pool:   pool,
		sched:  sched,
		hub:    hub,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			DefaultInterval: defaultInterval,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.sched == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/scheduler/status", s.handleSchedulerStatus)
	api.POST("/scheduler/start", s.handleSchedulerStart)
	api.POST("/scheduler/stop", s.handleSchedulerStop)
	api.POST("/scheduler/trigger", s.handleSchedulerTrigger)
	api.GET("/alerts/recent", s.handleRecentAlerts)

	e.GET("/ws/alerts", s.handleAlertSocket)

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

	s.logger.Info().Str("addr", addr).Msg("finnews api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("finnews api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
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

	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		if status >= 500 {
			_ = internalError(c, "Internal server error")
			return
		}
		_ = fail(c, status, message, nil)
		return
	}

	_ = c.String(status, message)
}

func (s *Server) handleHealth(c echo.Context) error {
	payload := map[string]any{
		"service": "finnews",
		"time":    globaltime.UTC(),
	}
	if s.pool != nil {
		if err := s.pool.Ping(c.Request().Context()); err != nil {
			s.logger.Error().Err(err).Msg("health database ping failed")
			payload["database"] = "unreachable"
			return fail(c, http.StatusServiceUnavailable, "Database unreachable", payload)
		}
		payload["database"] = "ok"
	}
	return success(c, payload)
}

type schedulerStartRequest struct {
	IntervalSeconds *int `json:"interval_seconds,omitempty"`
}

func (s *Server) handleSchedulerStart(c echo.Context) error {
	var req schedulerStartRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be a JSON object"})
	}

	interval := s.opts.DefaultInterval
	if req.IntervalSeconds != nil {
		if *req.IntervalSeconds < 1 {
			return failValidation(c, map[string]string{"interval_seconds": "must be >= 1"})
		}
		interval = time.Duration(*req.IntervalSeconds) * time.Second
	}

	if err := s.sched.Start(interval); err != nil {
		return failConflict(c, err.Error())
	}
	return success(c, s.sched.Status())
}

func (s *Server) handleSchedulerStop(c echo.Context) error {
	s.sched.Stop()
	return success(c, s.sched.Status())
}

func (s *Server) handleSchedulerStatus(c echo.Context) error {
	return success(c, s.sched.Status())
}

func (s *Server) handleSchedulerTrigger(c echo.Context) error {
	launched := s.sched.TriggerNow()
	if !launched {
		return failConflict(c, "Cycle not launched: scheduler stopped or cycle in flight")
	}
	return success(c, map[string]any{
		"triggered": true,
	})
}

func (s *Server) handleRecentAlerts(c echo.Context) error {
	if s.hub == nil {
		return success(c, map[string]any{"items": []alert.Alert{}})
	}
	items := s.hub.Recent()
	return success(c, map[string]any{
		"items": items,
		"count": len(items),
	})
}
