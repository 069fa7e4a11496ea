package http

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/neon-saas/neon-gateway/internal/relay/domain"
	"github.com/neon-saas/neon-gateway/internal/relay/service"
)

func (h *Handler) cleanData(c *gin.Context) {
	h.relayUpload(c, service.EndpointCleanData, func(c *gin.Context) map[string]any {
		return map[string]any{"instructions": c.PostForm("instructions")}
	})
}

func (h *Handler) generateReport(c *gin.Context) {
	h.relayUpload(c, service.EndpointReport, func(c *gin.Context) map[string]any {
		instructions := strings.TrimSpace(c.PostForm("instructions"))
		if instructions == "" {
			instructions = service.DefaultReportInstructions
		}
		return map[string]any{"instructions": instructions}
	})
}

func (h *Handler) generateVisualizations(c *gin.Context) {
	h.relayUpload(c, service.EndpointVisualizations, nil)
}

// uploadHelper stages a file without calling the backend and returns the
// reference the chat relay accepts as "path".
func (h *Handler) uploadHelper(c *gin.Context) {
	fh, err := h.formFile(c)
	if err != nil {
		respondError(c, err)
		return
	}
	src, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("%w: open form file: %v", domain.ErrStaging, err))
		return
	}
	defer src.Close()

	ref, err := h.relay.Retain(c.Request.Context(), fh.Filename, src)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.UploadResponse{Success: true, Path: ref})
}

func (h *Handler) relayUpload(c *gin.Context, ep service.Endpoint, fields func(*gin.Context) map[string]any) {
	fh, err := h.formFile(c)
	if err != nil {
		respondError(c, err)
		return
	}
	src, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("%w: open form file: %v", domain.ErrStaging, err))
		return
	}
	defer src.Close()

	var extra map[string]any
	if fields != nil {
		extra = fields(c)
	}

	out, err := h.relay.ForwardUpload(c.Request.Context(), ep, fh.Filename, src, extra)
	if err != nil {
		respondError(c, err)
		return
	}
	respondBackendJSON(c, out)
}

// formFile enforces the upload cap and returns the required "file" part.
func (h *Handler) formFile(c *gin.Context) (*multipart.FileHeader, error) {
	if h.maxUploadBytes > 0 {
		if c.Request.ContentLength > h.maxUploadBytes {
			return nil, errUploadTooBig
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err == nil {
		return fh, nil
	}

	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		return nil, errUploadTooBig
	case errors.Is(err, http.ErrMissingFile):
		return nil, domain.ErrMissingFile
	default:
		return nil, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
}
