package transfers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fairshare/internal/logging"
	"github.com/mbd888/fairshare/internal/pagination"
	"github.com/mbd888/fairshare/internal/risk"
	"github.com/mbd888/fairshare/internal/validation"
)

// Handler provides HTTP handlers for transfers and viewer risk profiles.
type Handler struct {
	service *Service
}

// NewHandler creates a new transfers handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the transfer routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transfers", h.Send)
	r.GET("/transfers", h.List)
	r.GET("/transfers/summary", h.Summary)
	r.GET("/transfers/flow", h.Flow)

	viewers := r.Group("/viewers/:id", validation.UserParamMiddleware())
	viewers.GET("/profile", h.GetProfile)
	viewers.GET("/thresholds", h.GetThresholds)
}

// Send handles POST /v1/transfers. A flagged transfer is still a recorded
// transfer and returns 201 with success=false.
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'sender', 'recipient' and 'points'",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidUserID("sender", req.Sender),
		validation.ValidUserID("recipient", req.Recipient),
		validation.PositivePoints("points", req.Points),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	result, err := h.service.Send(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPoints), errors.Is(err, ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": err.Error(),
			})
		case errors.Is(err, risk.ErrStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "store_unavailable",
				"message": "Profile store is unavailable, try again shortly",
			})
		default:
			logging.L(c.Request.Context()).Error("transfer failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to process transfer",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

// List handles GET /v1/transfers
func (h *Handler) List(c *gin.Context) {
	q := ListQuery{
		Sender:      c.Query("sender"),
		Recipient:   c.Query("recipient"),
		FlaggedOnly: c.Query("flagged") == "true",
		Cursor:      c.Query("cursor"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		q.Limit = n
	}

	page, err := h.service.List(c.Request.Context(), q)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not a value returned by this endpoint",
		})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("list transfers failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list transfers",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": page.Transactions,
		"count":        len(page.Transactions),
		"nextCursor":   page.NextCursor,
		"hasMore":      page.HasMore,
	})
}

// Summary handles GET /v1/transfers/summary
func (h *Handler) Summary(c *gin.Context) {
	sum, err := h.service.Summary(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("summary failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to summarize transfers",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": sum})
}

// Flow handles GET /v1/transfers/flow?hours=
func (h *Handler) Flow(c *gin.Context) {
	hours := DefaultFlowHours
	if v := c.Query("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxFlowHours {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_hours",
				"message": ErrInvalidWindow.Error(),
			})
			return
		}
		hours = n
	}

	report, err := h.service.Flow(c.Request.Context(), hours)
	if err != nil {
		logging.L(c.Request.Context()).Error("flow report failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to report fund flow",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flow": report})
}

// GetProfile handles GET /v1/viewers/:id/profile
func (h *Handler) GetProfile(c *gin.Context) {
	view, ok := h.profile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetThresholds handles GET /v1/viewers/:id/thresholds
func (h *Handler) GetThresholds(c *gin.Context) {
	view, ok := h.profile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":     view.Profile.UserID,
		"thresholds": view.Thresholds,
	})
}

func (h *Handler) profile(c *gin.Context) (*ProfileView, bool) {
	view, err := h.service.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		logging.L(c.Request.Context()).Error("profile lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to resolve profile",
		})
		return nil, false
	}
	return view, true
}
