package http

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/neon-saas/neon-gateway/internal/relay/domain"
	"github.com/neon-saas/neon-gateway/internal/relay/service"
)

// chatWithData forwards whatever JSON the client sent.
func (h *Handler) chatWithData(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		respondError(c, errInvalidJSON)
		return
	}

	out, err := h.relay.ForwardJSON(c.Request.Context(), service.EndpointChatWithData, body)
	if err != nil {
		respondError(c, err)
		return
	}
	respondBackendJSON(c, out)
}

func (h *Handler) chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errInvalidJSON, err))
		return
	}

	out, err := h.relay.Chat(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondBackendJSON(c, out)
}
