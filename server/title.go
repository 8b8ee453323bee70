package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/hrygo/xflo/ai"
	"github.com/hrygo/xflo/internal/cache"
	"github.com/hrygo/xflo/internal/version"
)

const maxTitleMessages = 8

// handleGenerateTitle completes the posted messages into a title. Every failure
// answers with the fallback title and a non-2xx status.
func (s *Server) handleGenerateTitle(c echo.Context) error {
	var req ai.TitleRequest
	if err := c.Bind(&req); err != nil {
		slog.Warn("title request rejected", "error", err)
		return c.JSON(http.StatusBadRequest, ai.TitleResponse{Title: ai.FallbackTitle})
	}
	if len(req.Messages) == 0 || len(req.Messages) > maxTitleMessages {
		return c.JSON(http.StatusBadRequest, ai.TitleResponse{Title: ai.FallbackTitle})
	}

	start := time.Now()
	title, err := s.titles.Complete(c.Request().Context(), req.Messages)
	title = strings.TrimSpace(title)
	s.metrics.RecordTitleRequest(time.Since(start), err == nil)
	if err != nil {
		slog.Error("title_generation_failed", "error", err)
		return c.JSON(http.StatusInternalServerError, ai.TitleResponse{Title: ai.FallbackTitle})
	}
	if title == "" {
		title = ai.FallbackTitle
	}
	return c.JSON(http.StatusOK, ai.TitleResponse{Title: title})
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

// clientLimiter keeps one token bucket per client IP. Buckets of idle clients
// age out of a bounded cache.
type clientLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.LRU[string, *rate.Limiter]
}

const (
	limiterCapacity = 10000
	limiterIdleTTL  = 10 * time.Minute
)

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limit:    limit,
		burst:    burst,
		limiters: cache.New[string, *rate.Limiter](limiterCapacity, limiterIdleTTL),
	}
}

func (l *clientLimiter) get(key string) *rate.Limiter {
	return l.limiters.GetOrSet(key, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
}

func (l *clientLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if l.limit <= 0 {
			return next(c)
		}
		if !l.get(c.RealIP()).Allow() {
			return c.JSON(http.StatusTooManyRequests, ai.TitleResponse{Title: ai.FallbackTitle})
		}
		return next(c)
	}
}
