package file

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/convertly/server/internal/shared/errors"
	"github.com/convertly/server/internal/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes file lifecycle operations over HTTP.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHandler creates a new file handler.
func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger.Named("file-handler")}
}

// RegisterRoutes registers file routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/files", h.create)
	rg.GET("/files", h.list)
	rg.GET("/files/:id", h.get)
	rg.DELETE("/files/:id", h.delete)
}

func (h *Handler) create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		h.unauthorized(c)
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	f, uploadURL, err := h.manager.Create(c.Request.Context(), CreateInput{
		OwnerID:   userID,
		Name:      req.Name,
		MimeType:  req.MimeType,
		SizeBytes: req.SizeBytes,
		TTL:       time.Duration(req.TTLHours) * time.Hour,
	})
	if err != nil {
		h.respondError(c, err, userID)
		return
	}

	c.JSON(http.StatusCreated, CreateResponse{File: f, UploadURL: uploadURL})
}

func (h *Handler) list(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		h.unauthorized(c)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	files, err := h.manager.ListByOwner(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.respondError(c, err, userID)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Files: files})
}

func (h *Handler) get(c *gin.Context) {
	_, f, ok := h.ownedFile(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, f)
}

func (h *Handler) delete(c *gin.Context) {
	userID, f, ok := h.ownedFile(c)
	if !ok {
		return
	}

	if err := h.manager.Delete(c.Request.Context(), f.ID); err != nil {
		h.respondError(c, err, userID)
		return
	}

	c.Status(http.StatusNoContent)
}

// ownedFile loads the path file and enforces ownership. Files belonging to
// other users read as not found to avoid leaking their existence.
func (h *Handler) ownedFile(c *gin.Context) (uuid.UUID, *File, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		h.unauthorized(c)
		return uuid.Nil, nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		appErr := apperrors.BadRequest("invalid file id")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return uuid.Nil, nil, false
	}

	f, err := h.manager.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, userID)
		return uuid.Nil, nil, false
	}
	if f.OwnerID != userID {
		appErr := apperrors.NotFound("file")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return uuid.Nil, nil, false
	}

	return userID, f, true
}

func (h *Handler) unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": "UNAUTHORIZED", "message": "missing identity"},
	})
}

func (h *Handler) respondError(c *gin.Context, err error, userID uuid.UUID) {
	switch {
	case errors.Is(err, ErrFileNotFound):
		appErr := apperrors.NotFound("file")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, ErrInvalidTransition):
		appErr := apperrors.Conflict(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, ErrInvalidTTL):
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	default:
		h.logger.Error("file operation failed", zap.Error(err), zap.String("user_id", userID.String()))
		appErr := apperrors.Internal("file operation failed", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	}
}
