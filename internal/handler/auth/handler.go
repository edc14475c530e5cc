// Package auth exposes registration, session checks, and MFA management.
package auth

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/diarisk/health-api/internal/middleware"
	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/service/account"
	"github.com/diarisk/health-api/internal/service/mfa"
	apperrors "github.com/diarisk/health-api/pkg/errors"
	"github.com/diarisk/health-api/pkg/httputil"
)

type Handler struct {
	accounts *account.Service
	mfa      *mfa.Service
}

func NewHandler(accounts *account.Service, mfaSvc *mfa.Service) *Handler {
	return &Handler{accounts: accounts, mfa: mfaSvc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	r.POST("/register", h.Register)
	r.POST("/createProfile", h.CreateProfile)
	r.GET("/check", auth.Authenticate(), h.Check)

	m := r.Group("/mfa", auth.AuthenticateFirstFactor())
	m.POST("/setup", h.SetupMFA)
	m.POST("/verify", h.VerifyMFA)
	m.POST("/disable", h.DisableMFA)
	m.GET("/status", h.MFAStatus)
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	resp, err := h.accounts.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, account.ErrEmailInUse) {
			httputil.RespondWithError(c, apperrors.BadRequest("email already in use", nil))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, resp)
}

func (h *Handler) CreateProfile(c *gin.Context) {
	var req model.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	user, err := h.accounts.CreateProfile(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, account.ErrEmailInUse) {
			httputil.RespondWithError(c, apperrors.BadRequest("profile already exists", nil))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, gin.H{
		"id":     user.ID,
		"role":   user.Role,
		"status": user.Status,
	})
}

// Check answers whether the presented credentials fully authenticate; the
// MFA challenge path never reaches here, the gate answers it directly.
func (h *Handler) Check(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}
	httputil.RespondWithSuccess(c, model.CheckResponse{
		Authenticated: true,
		User: &model.Principal{
			ID:         user.ID,
			Email:      user.Email,
			Role:       user.Role,
			Status:     user.Status,
			MFAEnabled: user.MFAEnabled,
		},
	})
}

func (h *Handler) SetupMFA(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}

	resp, err := h.mfa.BeginEnrollment(c.Request.Context(), model.Principal{
		ID:    user.ID,
		Email: user.Email,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) VerifyMFA(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}

	var req model.MFAVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	if err := h.mfa.CompleteEnrollment(c.Request.Context(), user.ID, req.Code); err != nil {
		switch {
		case errors.Is(err, mfa.ErrNotInitiated):
			httputil.RespondWithError(c, apperrors.BadRequest("mfa enrollment not initiated", nil))
		case errors.Is(err, mfa.ErrAlreadyEnabled):
			httputil.RespondWithError(c, apperrors.BadRequest("mfa already enabled", nil))
		case errors.Is(err, mfa.ErrInvalidCode):
			httputil.RespondWithError(c, apperrors.BadRequest("invalid mfa code", nil))
		default:
			httputil.RespondWithError(c, err)
		}
		return
	}
	httputil.RespondWithSuccess(c, model.MFAStatusResponse{MFAEnabled: true})
}

func (h *Handler) DisableMFA(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}

	if err := h.mfa.Disable(c.Request.Context(), user.ID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, model.MFAStatusResponse{MFAEnabled: false})
}

func (h *Handler) MFAStatus(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}

	enabled, err := h.mfa.Status(c.Request.Context(), user.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, model.MFAStatusResponse{MFAEnabled: enabled})
}
