// Package server exposes the WhatsApp webhook and the operational endpoints
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xaenox/lead-router/internal/channels"
	"github.com/xaenox/lead-router/internal/metrics"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/rotation"
	"go.uber.org/zap"
)

const Version = "1.0.0"

// HandleTimeout bounds one webhook pipeline run, independent of the caller.
const HandleTimeout = 2 * time.Minute

// ChannelInfo describes a channel on the status endpoints.
type ChannelInfo struct {
	Status   channels.Status `json:"status"`
	Type     string          `json:"type"`
	Details  string          `json:"details,omitempty"`
	Interval string          `json:"check_interval,omitempty"`
}

// StatsSource reports per-operator assignment counts.
type StatsSource interface {
	Stats(ctx context.Context, now time.Time) ([]rotation.OperatorStats, error)
}

type Server struct {
	echo    *echo.Echo
	addr    string
	appName string
	handler channels.Handler
	stats   StatsSource
	logger  *zap.Logger

	handleTimeout time.Duration

	mu       sync.RWMutex
	channels map[models.ChannelType]ChannelInfo
}

func New(addr, appName string, handler channels.Handler, stats StatsSource, m *metrics.Metrics, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		addr:     addr,
		appName:  appName,
		handler:  handler,
		stats:    stats,
		logger:   logger,
		channels: make(map[models.ChannelType]ChannelInfo),

		handleTimeout: HandleTimeout,
	}
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/", s.root)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.POST("/webhook/whatsapp", s.whatsappWebhook)

	api := e.Group("/api")
	api.GET("/status", s.status)
	api.GET("/vendors/stats", s.vendorStats)
	return s
}

// SetChannel records a channel's startup status for the status endpoints.
func (s *Server) SetChannel(channel models.ChannelType, info ChannelInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel] = info
}

func (s *Server) snapshot() map[models.ChannelType]ChannelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.ChannelType]ChannelInfo, len(s.channels))
	for k, v := range s.channels {
		out[k] = v
	}
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.addr))
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	s.logger.Warn("HTTP request failed",
		zap.Int("status", code),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Error(err))
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}
