package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recbridge/backend/internal/models"
	"github.com/recbridge/backend/pkg/response"
)

// ContextUserID is the gin context key holding the caller's user ID.
const ContextUserID = "user_id"

// UserStore persists operators.
type UserStore interface {
	RecordLogin(ctx context.Context, id *Identity) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SessionRequest is the body for POST /auth/session.
type SessionRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users    UserStore
	verifier TokenVerifier
	jwt      *JWTService
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserStore, verifier TokenVerifier, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, verifier: verifier, jwt: jwt, logger: logger}
}

// Session handles POST /auth/session.
func (h *Handler) Session(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	id, err := h.verifier.Verify(c.Request.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, ErrDomainNotAllowed) {
			h.logger.Warn("sign-in from disallowed domain", zap.Error(err))
			response.Forbidden(c, "account domain not allowed")
			return
		}
		response.Unauthorized(c, "invalid identity token")
		return
	}

	user, err := h.users.RecordLogin(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("record login failed", zap.String("email", id.Email), zap.Error(err))
		response.Internal(c, "failed to record login")
		return
	}
	if !user.IsActive {
		response.Forbidden(c, "account disabled")
		return
	}

	token, err := h.jwt.Generate(user)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("operator signed in", zap.String("email", user.Email), zap.Int("login_count", user.LoginCount))
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	v, _ := c.Get(ContextUserID)
	userID, ok := v.(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load user")
		return
	}
	if user == nil {
		response.NotFound(c, "user not found")
		return
	}
	response.OK(c, user.ToPublic())
}
