package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xaenox/lead-router/internal/channels/whatsapp"
	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

func (s *Server) root(c echo.Context) error {
	states := make(map[models.ChannelType]string)
	for ch, info := range s.snapshot() {
		states[ch] = string(info.Status.State)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"app":      s.appName,
		"status":   "running",
		"version":  Version,
		"channels": states,
	})
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"system":   "running",
		"channels": s.snapshot(),
	})
}

func (s *Server) vendorStats(c echo.Context) error {
	if s.stats == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "rotation not configured")
	}
	stats, err := s.stats.Stats(c.Request().Context(), time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to load assignments").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"vendors": stats})
}

func (s *Server) whatsappWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body").SetInternal(err)
	}

	payload, err := whatsapp.ParsePayload(body)
	if err != nil {
		if errors.Is(err, models.ErrInvalidWebhookPayload) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	if payload.IsGroup {
		s.logger.Debug("Group message received", zap.String("remote_jid", payload.Key.RemoteJid))
	}

	// The gateway may drop the connection before the pipeline finishes; the
	// reply must still go out, so the pipeline does not inherit cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), s.handleTimeout)
	defer cancel()

	ev := payload.Event(time.Now())
	res, err := s.handler.Handle(ctx, models.ChannelWhatsApp, ev)
	if err != nil {
		s.logger.Error("Webhook message failed",
			zap.Error(err),
			zap.String("contact", ev.ContactRef),
			zap.String("dedup_key", ev.DedupKey))
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored", "reason": "error"})
	}
	if res.Skipped {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored", "reason": string(res.SkipReason)})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "processed", "result": res})
}
