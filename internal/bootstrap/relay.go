package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/neon-saas/neon-gateway/config"
	"github.com/neon-saas/neon-gateway/internal/relay/domain"
	"github.com/neon-saas/neon-gateway/internal/relay/service"
	"github.com/neon-saas/neon-gateway/internal/relay/staging"
)

// Relay is everything the relay routes and the sweeper share.
type Relay struct {
	Relay  *service.Relay
	Stager *staging.Stager
	Redis  *redis.Client
}

// Close releases the Redis connection, if any.
func (r *Relay) Close() error {
	if r.Redis != nil {
		return r.Redis.Close()
	}
	return nil
}

// BuildRelay wires staging, the registry, delivery and the backend client
// from cfg. reg may be nil to skip metric registration.
func BuildRelay(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Relay, error) {
	out := &Relay{}

	var registry staging.Registry
	if cfg.Redis.Enabled() {
		client, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		out.Redis = client
		registry = staging.NewRedisRegistry(client)
		logger.Info("staging registry: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		registry = staging.NewMemoryRegistry()
		logger.Info("staging registry: memory")
	}

	delivery, err := buildDelivery(ctx, cfg)
	if err != nil {
		out.Close()
		return nil, err
	}

	stager, err := staging.NewStager(staging.Options{
		Dir:      cfg.Staging.Dir,
		Naming:   cfg.Staging.Naming,
		TTL:      cfg.Staging.TTL,
		Registry: registry,
		OnExpire: func(ctx context.Context, up domain.Upload) {
			if err := delivery.Discard(ctx, &up); err != nil {
				logger.Warn("discard expired upload copy", zap.String("upload_id", up.ID), zap.Error(err))
			}
		},
	})
	if err != nil {
		out.Close()
		return nil, err
	}
	out.Stager = stager

	metrics := service.NewMetrics(reg)
	client := service.NewBackendClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, metrics)
	out.Relay = service.NewRelay(client, stager, delivery, metrics)

	logger.Info("relay configured",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("delivery", delivery.Mode()),
		zap.String("staging_dir", stager.Dir()),
		zap.String("naming", cfg.Staging.Naming),
	)
	return out, nil
}

func buildDelivery(ctx context.Context, cfg *config.Config) (service.Delivery, error) {
	switch cfg.Backend.Delivery {
	case service.DeliveryInline:
		return service.InlineDelivery{}, nil
	case service.DeliveryObject:
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return service.NewObjectDelivery(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	case service.DeliveryPath, "":
		return service.PathDelivery{}, nil
	default:
		return nil, fmt.Errorf("unknown delivery mode %q", cfg.Backend.Delivery)
	}
}
