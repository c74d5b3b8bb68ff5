package tool

import (
	"errors"
	"net/http"

	"github.com/convertly/server/internal/module/billing"
	"github.com/convertly/server/internal/module/file"
	apperrors "github.com/convertly/server/internal/shared/errors"
	"github.com/convertly/server/internal/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes tool invocations over HTTP.
type Handler struct {
	service  *Service
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates a new tool handler.
func NewHandler(service *Service, registry *Registry, logger *zap.Logger) *Handler {
	return &Handler{service: service, registry: registry, logger: logger.Named("tool-handler")}
}

// RegisterRoutes registers tool routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tools", h.list)
	rg.POST("/tools/:tool", h.invoke)
}

// InvokeRequest names the file a tool should run against.
type InvokeRequest struct {
	FileID uuid.UUID `json:"file_id" binding:"required"`
}

func (h *Handler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.registry.Names()})
}

func (h *Handler) invoke(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "missing identity"}})
		return
	}

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	result, err := h.service.Invoke(c.Request.Context(), userID, req.FileID, c.Param("tool"))
	if err != nil {
		h.respondError(c, err, userID)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) respondError(c *gin.Context, err error, userID uuid.UUID) {
	var quotaErr *QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		appErr := apperrors.QuotaExceeded(quotaErr.Reservation.Reason)
		c.JSON(appErr.StatusCode, gin.H{
			"error":       gin.H{"code": appErr.Code, "message": appErr.Message},
			"reservation": quotaErr.Reservation,
		})
	case errors.Is(err, ErrUnknownTool):
		appErr := apperrors.NotFound("tool")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, file.ErrFileNotFound):
		appErr := apperrors.NotFound("file")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, file.ErrInvalidTransition):
		appErr := apperrors.Conflict(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, billing.ErrUserNotFound):
		appErr := apperrors.NotFound("user")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, ErrProcessingFailed):
		appErr := apperrors.Internal(err.Error(), err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	default:
		h.logger.Error("tool invocation failed", zap.Error(err), zap.String("user_id", userID.String()))
		appErr := apperrors.Internal("tool invocation failed", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	}
}
