package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Backend   string    `json:"backend"`
	Redis     string    `json:"redis,omitempty"`
}

// Pinger is anything health can probe: the processing backend client or a
// Redis client wrapper.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	serviceName string
	version     string
	backend     Pinger
	redis       Pinger
	timeout     time.Duration
}

// NewHealthHandler builds the health endpoint. redis may be nil when the
// in-memory registry is in use.
func NewHealthHandler(serviceName, version string, backend, redis Pinger) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		backend:     backend,
		redis:       redis,
		timeout:     2 * time.Second,
	}
}

// HealthCheck always answers 200 while the gateway itself is up; degraded
// dependencies are reported in the body.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		Backend:   h.probe(c.Request.Context(), h.backend),
	}
	if h.redis != nil {
		resp.Redis = h.probe(c.Request.Context(), h.redis)
	}
	if resp.Backend == "down" || resp.Redis == "down" {
		resp.Status = "degraded"
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return "down"
	}
	return "up"
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
