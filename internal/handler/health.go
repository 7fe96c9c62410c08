package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"media-proxy-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusResponse is the body of the status endpoint.
type statusResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	BindAddr      string  `json:"bind_addr"`
	UserAgent     string  `json:"user_agent"`
	TimeoutMillis int64   `json:"timeout_ms"`
	MaxSize       int64   `json:"max_size"`
	Quality       float32 `json:"quality"`
	Lossless      bool    `json:"lossless"`
}

// Status returns proxy status information and the effective limits.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:        "ok",
		Version:       string(h.version),
		BindAddr:      h.cfg.Server.BindAddr,
		UserAgent:     h.cfg.Fetch.UserAgent,
		TimeoutMillis: h.cfg.Fetch.TimeoutMillis,
		MaxSize:       h.cfg.Fetch.MaxSize,
		Quality:       h.cfg.Encode.Quality,
		Lossless:      h.cfg.Encode.Lossless,
	})
}
