package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/groupwarden/warden/telegram"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

// RunWebhook registers the public webhook with the Bot API and serves update
// deliveries until the context is cancelled.
func (s *Server) RunWebhook(ctx context.Context, bind string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())

	e.GET("/healthz", s.handleHealthz)
	// the bot token in the path is the shared secret: only the Bot API knows
	// the full URL
	e.POST("/webhook/:token", s.handleWebhook)

	if err := s.tg.SetWebhook(ctx, s.webhookURL+"/webhook/"+s.tg.Token); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("webhook listener running", "bind", bind)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.tg.DeleteWebhook(shutCtx); err != nil {
		s.logger.Error("failed to deregister webhook", "err", err)
	}
	if err := e.Shutdown(shutCtx); err != nil {
		s.logger.Error("webhook listener shutdown failed", "err", err)
	}
	return s.Shutdown()
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleWebhook(c echo.Context) error {
	if c.Param("token") != s.tg.Token {
		return c.NoContent(http.StatusForbidden)
	}

	var upd telegram.Update
	if err := c.Bind(&upd); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if err := s.EnqueueUpdate(c.Request().Context(), &upd); err != nil {
		return err
	}
	// always ack; a retry of a processed update is absorbed by dedupe anyway
	return c.NoContent(http.StatusOK)
}
