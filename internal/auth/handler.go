package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/audioscribe/backend/internal/identity"
	"github.com/audioscribe/backend/internal/middleware"
	"github.com/audioscribe/backend/internal/models"
	"github.com/audioscribe/backend/pkg/response"
)

// Verifier checks external identity tokens and builds the consent URL.
type Verifier interface {
	Verify(ctx context.Context, token string) (*identity.Identity, error)
	LoginURL(state string) string
}

// UserStore persists users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpsertGoogleUser(ctx context.Context, id *identity.Identity) (*models.User, error)
}

// GoogleTokenRequest is the body for POST /auth/google/token.
type GoogleTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// TokenResponse carries a session token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// LoginResponse is the body of GET /auth/google/login.
type LoginResponse struct {
	AuthURL string `json:"auth_url"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users    UserStore
	verifier Verifier
	jwt      *JWTService
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserStore, verifier Verifier, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, verifier: verifier, jwt: jwt, logger: logger}
}

// GoogleToken handles POST /auth/google/token.
func (h *Handler) GoogleToken(c *gin.Context) {
	var req GoogleTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Unauthorized(c, "authentication failed")
		return
	}

	id, err := h.verifier.Verify(c.Request.Context(), req.Token)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidToken) {
			h.logger.Warn("identity verification failed", zap.Error(err))
		}
		response.Unauthorized(c, "authentication failed")
		return
	}

	user, err := h.users.UpsertGoogleUser(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("upsert user failed", zap.String("google_id", id.SubjectID), zap.Error(err))
		response.Unauthorized(c, "authentication failed")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{AccessToken: token, TokenType: TokenType})
}

// GoogleLogin handles GET /auth/google/login.
func (h *Handler) GoogleLogin(c *gin.Context) {
	response.OK(c, LoginResponse{AuthURL: h.verifier.LoginURL(uuid.NewString())})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if errors.Is(err, ErrUserNotFound) {
		response.Unauthorized(c, "could not validate credentials")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load user")
		return
	}
	response.OK(c, user.ToPublic())
}
