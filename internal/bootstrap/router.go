package bootstrap

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httpapi "github.com/neon-saas/neon-gateway/internal/api/http"
	"github.com/neon-saas/neon-gateway/internal/api/http/middleware"
	relayhttp "github.com/neon-saas/neon-gateway/internal/relay/http"
)

type RouterDeps struct {
	ServiceName    string
	Version        string
	AllowOrigins   []string
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxUploadBytes int64
	Logger         *zap.Logger
	Relay          *Relay
	Gatherer       prometheus.Gatherer
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(dep.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     dep.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.APIKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	var redisPing httpapi.Pinger
	if dep.Relay.Redis != nil {
		rdb := dep.Relay.Redis
		redisPing = httpapi.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	backend := httpapi.PingerFunc(dep.Relay.Relay.Client().Probe)
	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, backend, redisPing)
	healthHandler.RegisterRoutes(r)

	if dep.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(dep.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Use(middleware.APIKey(dep.APIKey))
	if dep.RateLimitRPS > 0 {
		api.Use(middleware.RateLimit(middleware.NewClientLimiter(dep.RateLimitRPS, dep.RateLimitBurst)))
	}

	relayHandler := relayhttp.New(dep.Relay.Relay, dep.MaxUploadBytes)
	relayHandler.Register(api)

	return r
}
