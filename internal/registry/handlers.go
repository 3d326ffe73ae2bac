package registry

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP handlers for the registry tables
type Handler struct {
	registry *MemoryRegistry
}

// NewHandler creates a new registry handler
func NewHandler(registry *MemoryRegistry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes sets up the registry routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/viewers", h.ListViewers)
	r.GET("/creators", h.ListCreators)
}

// ListViewers handles GET /viewers
func (h *Handler) ListViewers(c *gin.Context) {
	viewers := h.registry.Viewers()
	viewers = viewers[:clampLimit(parseIntQuery(c, "limit", len(viewers)), len(viewers))]

	c.JSON(http.StatusOK, gin.H{
		"viewers": viewers,
		"count":   len(viewers),
	})
}

// ListCreators handles GET /creators
func (h *Handler) ListCreators(c *gin.Context) {
	creators := h.registry.Creators()
	creators = creators[:clampLimit(parseIntQuery(c, "limit", len(creators)), len(creators))]

	c.JSON(http.StatusOK, gin.H{
		"creators": creators,
		"count":    len(creators),
	})
}

func clampLimit(limit, n int) int {
	if limit > n {
		return n
	}
	return limit
}

func parseIntQuery(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}
