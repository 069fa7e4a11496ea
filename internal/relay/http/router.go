package http

import "github.com/gin-gonic/gin"

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/chat-with-data", h.chatWithData)
	rg.POST("/chat", h.chat)

	rg.POST("/clean-data", h.cleanData)
	rg.POST("/generate-report", h.generateReport)
	rg.POST("/generate-visualizations", h.generateVisualizations)
	rg.POST("/upload_helper", h.uploadHelper)
}
