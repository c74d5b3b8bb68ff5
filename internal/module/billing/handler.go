package billing

import (
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/convertly/server/internal/shared/errors"
	"github.com/convertly/server/internal/shared/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the read-only analytics surface over usage records.
type Handler struct {
	ledger *Ledger
	logger *zap.Logger
}

// NewHandler creates a new billing handler.
func NewHandler(ledger *Ledger, logger *zap.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger.Named("billing-handler")}
}

// RegisterRoutes registers billing routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/usage/stats", h.getUsageStats)
}

// getUsageStats returns aggregated usage for the authenticated user.
// Query: days (default 30, max 365).
func (h *Handler) getUsageStats(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "missing identity"}})
		return
	}

	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			appErr := apperrors.BadRequest("days must be between 1 and 365")
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}
		days = parsed
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	stats, err := h.ledger.UsageStats(c.Request.Context(), userID, start, end)
	if err != nil {
		h.logger.Error("get usage stats failed", zap.Error(err), zap.String("user_id", userID.String()))
		appErr := apperrors.Internal("failed to load usage stats", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	c.JSON(http.StatusOK, stats)
}
