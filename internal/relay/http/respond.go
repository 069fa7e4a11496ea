package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/neon-saas/neon-gateway/internal/logging"
	"github.com/neon-saas/neon-gateway/internal/relay/domain"
)

var (
	errInvalidJSON   = errors.New("invalid JSON body")
	errInvalidForm   = errors.New("invalid multipart form")
	errUploadTooBig  = errors.New("upload exceeds size limit")
	errInternalError = errors.New("internal server error")
)

// respondBackendJSON writes a backend success body through unchanged.
func respondBackendJSON(c *gin.Context, body []byte) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// respondError maps any relay error to the {"error": ...} envelope.
func respondError(c *gin.Context, err error) {
	status, msg := classify(err)

	logger := logging.FromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("relay failed", zap.String("route", c.FullPath()), zap.Int("status", status), zap.Error(err))
	} else {
		logger.Info("relay rejected", zap.String("route", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, domain.ErrorResponse{Error: msg})
}

func classify(err error) (int, string) {
	var be *domain.BackendError
	switch {
	case errors.As(err, &be):
		// Only error statuses are passed through; anything else would reach
		// the client without an error body.
		if be.StatusCode < http.StatusBadRequest {
			return http.StatusInternalServerError, be.Message
		}
		return be.StatusCode, be.Message
	case errors.Is(err, domain.ErrMissingFile):
		return http.StatusBadRequest, domain.ErrMissingFile.Error()
	case errors.Is(err, errInvalidJSON):
		return http.StatusBadRequest, errInvalidJSON.Error()
	case errors.Is(err, errInvalidForm):
		return http.StatusBadRequest, errInvalidForm.Error()
	case errors.Is(err, errUploadTooBig):
		return http.StatusRequestEntityTooLarge, errUploadTooBig.Error()
	case errors.Is(err, domain.ErrStaging):
		return http.StatusInternalServerError, domain.ErrStaging.Error()
	case errors.Is(err, domain.ErrBackendUnreachable):
		return http.StatusInternalServerError, domain.ErrBackendUnreachable.Error()
	case errors.Is(err, domain.ErrMalformedBackendResponse):
		return http.StatusInternalServerError, domain.ErrMalformedBackendResponse.Error()
	default:
		return http.StatusInternalServerError, errInternalError.Error()
	}
}
