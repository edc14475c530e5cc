package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
	"github.com/diarisk/health-api/internal/service/mfa"
	"github.com/diarisk/health-api/internal/service/token"
)

const (
	// ContextUser holds the authenticated *model.User.
	ContextUser = "current_user"

	// HeaderTOTPCode carries the second-factor code on MFA-enabled accounts.
	HeaderTOTPCode = "X-TOTP-Code"
)

const userCacheTTL = 30 * time.Second

// NewPrincipalCache builds the short-lived principal cache. The same
// instance must be handed to every component that mutates principal state,
// so a cached entry never outlives an MFA or status change.
func NewPrincipalCache() *cache.Cache {
	return cache.New(userCacheTTL, time.Minute)
}

type AuthMiddleware struct {
	tokens *token.Verifier
	users  repository.UserRepository
	mfa    *mfa.Service
	cache  *cache.Cache
	logger zerolog.Logger
}

func NewAuthMiddleware(tokens *token.Verifier, users repository.UserRepository, mfaSvc *mfa.Service, principals *cache.Cache, logger zerolog.Logger) *AuthMiddleware {
	if principals == nil {
		principals = NewPrincipalCache()
	}
	return &AuthMiddleware{
		tokens: tokens,
		users:  users,
		mfa:    mfaSvc,
		cache:  principals,
		logger: logger,
	}
}

// Authenticate verifies the bearer token, loads the principal, and escalates
// to the second factor when the account has MFA enabled. A missing
// X-TOTP-Code on an MFA-enabled account yields a distinguished challenge
// response so the caller can prompt.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return m.authenticate(true)
}

// AuthenticateFirstFactor verifies the bearer token and loads the principal
// without demanding a TOTP code. The MFA management endpoints use it; the
// enrollment confirmation code travels in the body there, not the header.
func (m *AuthMiddleware) AuthenticateFirstFactor() gin.HandlerFunc {
	return m.authenticate(false)
}

func (m *AuthMiddleware) authenticate(secondFactor bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		claims, err := m.tokens.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, err := m.loadUser(c, claims)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			m.logger.Error().Err(err).Msg("failed to load principal")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		if secondFactor && user.MFAEnabled {
			code := c.GetHeader(HeaderTOTPCode)
			if code == "" {
				c.AbortWithStatusJSON(http.StatusForbidden, model.MFAChallengeResponse{
					RequireMFA:    true,
					Authenticated: false,
				})
				return
			}
			if err := m.mfa.Verify(c.Request.Context(), user.ID, code); err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid MFA code"})
				return
			}
		}

		c.Set(ContextUser, user)
		c.Next()
	}
}

func (m *AuthMiddleware) loadUser(c *gin.Context, claims *token.Claims) (*model.User, error) {
	key := claims.PrincipalID.String()
	if cached, ok := m.cache.Get(key); ok {
		return cached.(*model.User), nil
	}
	user, err := m.users.Get(c.Request.Context(), claims.PrincipalID)
	if err != nil {
		return nil, err
	}
	m.cache.Set(key, user, cache.DefaultExpiration)
	return user, nil
}

// RequireRoles rejects principals whose role is outside the allowed set.
func (m *AuthMiddleware) RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		if _, ok := allowed[user.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireApproved denies clinicians whose account is still pending or was
// rejected; they may not touch patient data until an admin approves them.
func (m *AuthMiddleware) RequireApproved() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		if user.Role == model.RoleClinician &&
			(user.Status == model.StatusPending || user.Status == model.StatusRejected) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		if user.Status == model.StatusDisabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user attached by Authenticate.
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}
