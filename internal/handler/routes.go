package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-proxy-go/internal/config"
	"media-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The media
// endpoint answers on every path not taken by a reserved route.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, media *MediaHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		h := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
		e.GET(cfg.Metrics.Path, echo.WrapHandler(h))
	}

	e.GET("/", media.Handle)
	e.GET("/*", media.Handle)
}
