package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/kryote/support-chat/internal/common"
)

const serviceVersion = "1.0.0"

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{
		"status":  "healthy",
		"service": "support-chat",
		"version": serviceVersion,
	})
}
