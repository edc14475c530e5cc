package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository/memory"
	"github.com/diarisk/health-api/internal/service/mfa"
	"github.com/diarisk/health-api/internal/service/token"
	"github.com/diarisk/health-api/pkg/security"
)

const (
	testSecret = "test-token-secret"
	testIssuer = "diarisk"
)

type authFixture struct {
	router *gin.Engine
	auth   *AuthMiddleware
	users  *memory.UserRepository
	mfa    *mfa.Service
	codec  *security.Codec
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	codec, err := security.NewCodec("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	users := memory.NewUserRepository()
	principals := NewPrincipalCache()
	mfaSvc := mfa.NewService(users, codec, testIssuer, principals, nil)
	verifier := token.NewVerifier(token.Config{Secret: testSecret, Issuer: testIssuer})
	auth := NewAuthMiddleware(verifier, users, mfaSvc, principals, zerolog.Nop())

	r := gin.New()
	protected := r.Group("/", auth.Authenticate())
	protected.GET("/me", func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})
	protected.GET("/admin", auth.RequireRoles(model.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	protected.GET("/patients", auth.RequireRoles(model.RoleClinician), auth.RequireApproved(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return &authFixture{router: r, auth: auth, users: users, mfa: mfaSvc, codec: codec}
}

func (f *authFixture) addUser(t *testing.T, role, status string, mfaEnabled bool) (*model.User, string) {
	t.Helper()
	u := &model.User{
		Base:       model.Base{ID: uuid.New()},
		Email:      uuid.NewString() + "@example.com",
		Role:       role,
		Status:     status,
		MFAEnabled: mfaEnabled,
	}
	if mfaEnabled {
		rawSecret, err := totp.Generate(totp.GenerateOpts{Issuer: testIssuer, AccountName: u.Email})
		require.NoError(t, err)
		protected, err := f.codec.Encode(rawSecret.Secret())
		require.NoError(t, err)
		u.MFASecret = &protected
	}
	require.NoError(t, f.users.Create(context.Background(), u))

	claims := jwt.MapClaims{
		"sub":   u.ID.String(),
		"email": u.Email,
		"iss":   testIssuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return u, signed
}

func (f *authFixture) get(path, bearer, totpCode string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if totpCode != "" {
		req.Header.Set(HeaderTOTPCode, totpCode)
	}
	f.router.ServeHTTP(w, req)
	return w
}

func TestAuthenticateMissingHeader(t *testing.T) {
	f := newAuthFixture(t)
	w := f.get("/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestAuthenticateTOTPCodeAloneIsNotEnough(t *testing.T) {
	f := newAuthFixture(t)
	w := f.get("/me", "", "123456")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateBadToken(t *testing.T) {
	f := newAuthFixture(t)
	w := f.get("/me", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")
}

func TestAuthenticateUnknownPrincipal(t *testing.T) {
	f := newAuthFixture(t)
	claims := jwt.MapClaims{
		"sub": uuid.NewString(),
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	w := f.get("/me", signed, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthenticatePlainAccount(t *testing.T) {
	f := newAuthFixture(t)
	_, bearer := f.addUser(t, model.RoleUser, model.StatusActive, false)
	w := f.get("/me", bearer, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateMFAChallenge(t *testing.T) {
	f := newAuthFixture(t)
	u, bearer := f.addUser(t, model.RoleUser, model.StatusActive, true)

	w := f.get("/me", bearer, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"requireMfa":true`)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	w = f.get("/me", bearer, "000000")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid MFA code")

	var secret string
	require.NoError(t, f.codec.Decode(*u.MFASecret, &secret))
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	w = f.get("/me", bearer, code)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateSeesFreshEnrollment(t *testing.T) {
	f := newAuthFixture(t)
	u, bearer := f.addUser(t, model.RoleUser, model.StatusActive, false)
	ctx := context.Background()

	// Prime the principal cache before the factor exists.
	assert.Equal(t, http.StatusOK, f.get("/me", bearer, "").Code)

	setup, err := f.mfa.BeginEnrollment(ctx, model.Principal{ID: u.ID, Email: u.Email, Role: u.Role})
	require.NoError(t, err)
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.mfa.CompleteEnrollment(ctx, u.ID, code))

	w := f.get("/me", bearer, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"requireMfa":true`)

	require.NoError(t, f.mfa.Disable(ctx, u.ID))
	assert.Equal(t, http.StatusOK, f.get("/me", bearer, "").Code)
}

func TestRequireRoles(t *testing.T) {
	f := newAuthFixture(t)
	_, userBearer := f.addUser(t, model.RoleUser, model.StatusActive, false)
	_, adminBearer := f.addUser(t, model.RoleAdmin, model.StatusActive, false)

	assert.Equal(t, http.StatusForbidden, f.get("/admin", userBearer, "").Code)
	assert.Equal(t, http.StatusOK, f.get("/admin", adminBearer, "").Code)
}

func TestRequireApprovedBlocksPendingClinicians(t *testing.T) {
	f := newAuthFixture(t)
	_, pendingBearer := f.addUser(t, model.RoleClinician, model.StatusPending, false)
	_, rejectedBearer := f.addUser(t, model.RoleClinician, model.StatusRejected, false)
	_, activeBearer := f.addUser(t, model.RoleClinician, model.StatusActive, false)

	assert.Equal(t, http.StatusForbidden, f.get("/patients", pendingBearer, "").Code)
	assert.Equal(t, http.StatusForbidden, f.get("/patients", rejectedBearer, "").Code)
	assert.Equal(t, http.StatusOK, f.get("/patients", activeBearer, "").Code)
}
