// Package admin exposes the account review surface.
package admin

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/diarisk/health-api/internal/middleware"
	"github.com/diarisk/health-api/internal/model"
	adminsvc "github.com/diarisk/health-api/internal/service/admin"
	apperrors "github.com/diarisk/health-api/pkg/errors"
	"github.com/diarisk/health-api/pkg/httputil"
)

type Handler struct {
	service *adminsvc.Service
}

func NewHandler(service *adminsvc.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	g := r.Group("", auth.Authenticate(), auth.RequireRoles(model.RoleAdmin))
	g.GET("/users", h.ListUsers)
	g.POST("/users/:id/status", h.UpdateStatus)
	g.DELETE("/users/:id", h.DeleteUser)
	g.GET("/actions", h.Actions)
}

func (h *Handler) ListUsers(c *gin.Context) {
	views, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	admin, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user ID", nil))
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	view, err := h.service.UpdateStatus(c.Request.Context(), admin.ID, targetID, &req)
	if err != nil {
		switch {
		case errors.Is(err, adminsvc.ErrUserNotFound):
			httputil.RespondWithError(c, apperrors.NotFound("user not found", nil))
		case errors.Is(err, adminsvc.ErrSelfAction):
			httputil.RespondWithError(c, apperrors.BadRequest("cannot change own account status", nil))
		default:
			httputil.RespondWithError(c, err)
		}
		return
	}
	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	admin, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid user ID", nil))
		return
	}

	if err := h.service.DeleteUser(c.Request.Context(), admin.ID, targetID); err != nil {
		switch {
		case errors.Is(err, adminsvc.ErrUserNotFound):
			httputil.RespondWithError(c, apperrors.NotFound("user not found", nil))
		case errors.Is(err, adminsvc.ErrSelfAction):
			httputil.RespondWithError(c, apperrors.BadRequest("cannot delete own account", nil))
		default:
			httputil.RespondWithError(c, err)
		}
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"deleted": targetID})
}

func (h *Handler) Actions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, entries)
}
