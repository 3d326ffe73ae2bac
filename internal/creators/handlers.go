package creators

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fairshare/internal/ledger"
	"github.com/mbd888/fairshare/internal/logging"
	"github.com/mbd888/fairshare/internal/registry"
)

// qualityHistoryLimit caps how many recent transfers a quality score reads.
const qualityHistoryLimit = 1000

// CreatorSource lists the creator table.
type CreatorSource interface {
	Creators() []registry.Creator
}

// ReceivedSource reports points received per creator from clean transfers.
type ReceivedSource interface {
	ReceivedByRecipient(ctx context.Context) (map[string]int64, error)
}

// HistorySource lists ledger rows newest first.
type HistorySource interface {
	List(ctx context.Context, f ledger.Filter, limit int, opts ...ledger.ListOption) ([]*ledger.Transaction, error)
}

// Handler provides HTTP endpoints for creator analytics
type Handler struct {
	creators CreatorSource
	received ReceivedSource
	history  HistorySource
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHistory reads transfer history for quality scores. Without it every
// creator scores as having no transfers.
func WithHistory(src HistorySource) HandlerOption {
	return func(h *Handler) { h.history = src }
}

// NewHandler creates a creator analytics handler. received may be nil.
func NewHandler(creators CreatorSource, received ReceivedSource, opts ...HandlerOption) *Handler {
	h := &Handler{creators: creators, received: received}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes sets up creator analytics endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/creators/leaderboard", h.GetLeaderboard)
	r.POST("/creators/analyze", h.AnalyzeCreator)
	r.GET("/creators/:name/quality", h.GetQuality)
}

// GetLeaderboard handles GET /creators/leaderboard
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	var received map[string]int64
	if h.received != nil {
		var err error
		received, err = h.received.ReceivedByRecipient(c.Request.Context())
		if err != nil {
			logging.L(c.Request.Context()).Error("failed to load received points", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to load ledger totals",
			})
			return
		}
	}

	board := Leaderboard(h.creators.Creators(), received)
	if limit > 0 && limit < len(board) {
		board = board[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"leaderboard": board,
		"count":       len(board),
	})
}

// AnalyzeCreator handles POST /creators/analyze
func (h *Handler) AnalyzeCreator(c *gin.Context) {
	var req Candidate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'name' and creator metrics",
		})
		return
	}

	analysis, err := Analyze(req, h.creators.Creators())
	if errors.Is(err, ErrInvalidCandidate) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_metrics",
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to analyze creator",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis})
}

// GetQuality handles GET /creators/:name/quality. Optional query
// parameters describe the latest video: duration (minutes), retention
// (percent), category and trending.
func (h *Handler) GetQuality(c *gin.Context) {
	name := c.Param("name")
	var creator registry.Creator
	found := false
	for _, cr := range h.creators.Creators() {
		if cr.Name == name {
			creator, found = cr, true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "creator_not_found",
			"message": "No creator named " + strconv.Quote(name),
		})
		return
	}

	content, err := parseContent(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_content",
			"message": err.Error(),
		})
		return
	}

	var history []*ledger.Transaction
	if h.history != nil {
		history, err = h.history.List(c.Request.Context(), ledger.Filter{Recipient: name}, qualityHistoryLimit)
		if err != nil {
			logging.L(c.Request.Context()).Error("failed to load creator history", "creator", name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to load transfer history",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"quality": AssessQuality(creator, history, content)})
}

func parseContent(c *gin.Context) (Content, error) {
	content := Content{Category: c.Query("category")}

	if v := c.Query("duration"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d < 0 {
			return Content{}, errors.New("duration must be a non-negative number of minutes")
		}
		content.DurationMinutes = &d
	}
	if v := c.Query("retention"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 || r > 100 {
			return Content{}, errors.New("retention must be a percentage between 0 and 100")
		}
		content.RetentionPercent = &r
	}
	if v := c.Query("trending"); v != "" {
		t, err := strconv.ParseBool(v)
		if err != nil {
			return Content{}, errors.New("trending must be true or false")
		}
		content.Trending = t
	}
	return content, nil
}
