package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docrank/internal/pkg/response"
)

type HealthHandler struct {
	backend     string
	assistantID string
}

func NewHealthHandler(backend, assistantID string) *HealthHandler {
	return &HealthHandler{backend: backend, assistantID: assistantID}
}

func (h *HealthHandler) Get(c *gin.Context) {
	response.Success(c, gin.H{
		"status":               "ok",
		"backend":              h.backend,
		"assistant_configured": h.assistantID != "",
	})
}
