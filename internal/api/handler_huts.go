package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHuts handles GET /api/huts.
func (h *Handler) GetHuts(c *gin.Context) {
	huts, err := h.store.ListHuts(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve huts"})
		return
	}
	c.JSON(http.StatusOK, huts)
}
