package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, h *HealthHandler, path string) HealthResponse {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck_AllUp(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	backend := PingerFunc(func(context.Context) error { return nil })
	redisPing := PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	h := NewHealthHandler("neon-gateway", "1.2.3", backend, redisPing)

	for _, path := range []string{"/health", "/healthz"} {
		resp := serveHealth(t, h, path)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "neon-gateway", resp.Service)
		assert.Equal(t, "1.2.3", resp.Version)
		assert.Equal(t, "up", resp.Backend)
		assert.Equal(t, "up", resp.Redis)
	}
}

func TestHealthCheck_Degraded(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	backend := PingerFunc(func(context.Context) error { return errors.New("connection refused") })
	redisPing := PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	resp := serveHealth(t, NewHealthHandler("gw", "v", backend, redisPing), "/health")

	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Backend)
	assert.Equal(t, "down", resp.Redis)
}

func TestHealthCheck_NoRedis(t *testing.T) {
	resp := serveHealth(t, NewHealthHandler("gw", "v", nil, nil), "/health")

	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "disabled", resp.Backend)
	assert.Empty(t, resp.Redis)
}
