package stats

import (
	"context"
	"net/http"
	"time"

	"github.com/Gthulhu/scx_netland/logger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const StatsPath = "/api/v1/stats"

// StatsResponse is the envelope returned by GET /api/v1/stats.
type StatsResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Data      *Metrics `json:"data,omitempty"`
}

type Handler struct {
	src     Requester
	timeout time.Duration
}

func NewHandler(src Requester, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Handler{src: src, timeout: timeout}
}

func (h *Handler) SetupRoutes(engine *echo.Echo, gatherer prometheus.Gatherer) {
	engine.GET("/health", h.HealthCheck)
	engine.GET(StatsPath, h.GetStats)
	if gatherer != nil {
		engine.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

func (h *Handler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) GetStats(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	m, err := h.src.Request(ctx)
	if err != nil {
		logger.Logger(ctx).Warn().Err(err).Msg("stats request failed")
		return c.JSON(http.StatusServiceUnavailable, StatsResponse{
			Success:   false,
			Message:   "Scheduler did not answer: " + err.Error(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, StatsResponse{
		Success:   true,
		Message:   "Stats retrieved successfully",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      &m,
	})
}

// NewHTTPServer builds the echo engine serving health, stats and prometheus metrics.
// The collector is registered on a private registry.
func NewHTTPServer(src Requester, timeout time.Duration) (*echo.Echo, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(src, timeout)); err != nil {
		return nil, err
	}
	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true
	NewHandler(src, timeout).SetupRoutes(engine, reg)
	return engine, nil
}
