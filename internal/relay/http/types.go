package http

import (
	"github.com/neon-saas/neon-gateway/internal/relay/service"
)

// Handler serves the relay routes.
type Handler struct {
	relay          *service.Relay
	maxUploadBytes int64
}

// New creates a Handler. maxUploadBytes caps multipart request bodies.
func New(relay *service.Relay, maxUploadBytes int64) *Handler {
	return &Handler{relay: relay, maxUploadBytes: maxUploadBytes}
}
