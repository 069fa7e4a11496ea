package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/neon-saas/neon-gateway/internal/logging"
	"github.com/neon-saas/neon-gateway/internal/relay/domain"
)

// BackendClient handles communication with the processing backend. Every call
// is a single JSON POST with no retries.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	metrics    *Metrics
}

// NewBackendClient creates a client for baseURL. A zero timeout leaves calls
// bounded only by the request context.
func NewBackendClient(baseURL string, timeout time.Duration, metrics *Metrics) *BackendClient {
	return &BackendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
	}
}

// BaseURL returns the backend base URL.
func (c *BackendClient) BaseURL() string { return c.baseURL }

// Post sends body to the endpoint and returns the backend's JSON reply.
// Non-2xx replies come back as *domain.BackendError; transport failures wrap
// domain.ErrBackendUnreachable; a 2xx body that is not JSON wraps
// domain.ErrMalformedBackendResponse.
func (c *BackendClient) Post(ctx context.Context, ep Endpoint, body []byte) ([]byte, error) {
	logger := logging.FromContext(ctx).With(zap.String("endpoint", ep.Name))
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ep.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observeBackend(ep.Name, time.Since(start), outcomeUnreachable)
		logger.Error("backend request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		c.metrics.observeBackend(ep.Name, duration, outcomeUnreachable)
		logger.Error("read backend response", zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrBackendUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.observeBackend(ep.Name, duration, outcomeBackendError)
		berr := &domain.BackendError{
			StatusCode: resp.StatusCode,
			Message:    NormalizeError(resp.StatusCode, respBody),
		}
		logger.Warn("backend returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("detail", berr.Message),
			zap.Duration("latency", duration),
		)
		return nil, berr
	}

	if !json.Valid(respBody) {
		c.metrics.observeBackend(ep.Name, duration, outcomeMalformed)
		logger.Error("backend returned non-JSON body",
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(respBody)),
		)
		return nil, fmt.Errorf("%w: %d bytes of non-JSON content", domain.ErrMalformedBackendResponse, len(respBody))
	}

	c.metrics.observeBackend(ep.Name, duration, outcomeOK)
	logger.Info("backend call",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", duration),
	)
	return respBody, nil
}

// Probe reports whether the backend answers HTTP at all. Any status counts.
func (c *BackendClient) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
