package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/h2trust/hydroledger/internal/email"
	"github.com/h2trust/hydroledger/internal/identity"
	"github.com/h2trust/hydroledger/internal/users"
	"go.uber.org/zap"
)

// AuthHandler handles registration, login, and session introspection.
type AuthHandler struct {
	users  *users.Service
	tokens *identity.TokenIssuer
	mailer email.Sender
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(userSvc *users.Service, tokens *identity.TokenIssuer, mailer email.Sender, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: userSvc, tokens: tokens, mailer: mailer, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	{
		a.POST("/register", h.RegisterUser)
		a.POST("/login", h.Login)
		a.GET("/me", identity.RequireSession(h.tokens), h.Me)
	}
}

// RegisterUser handles POST /auth/register.
func (h *AuthHandler) RegisterUser(c *gin.Context) {
	var req users.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	u, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, err := h.tokens.Issue(u.ID, u.Email, u.Name, u.Role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	subject, body := email.WelcomeMessage(u.Name, u.Role)
	if err := h.mailer.Send(c.Request.Context(), u.Email, subject, body); err != nil {
		h.logger.Warn("send welcome email",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
	}

	respondOK(c, http.StatusCreated, "account created", gin.H{
		"user":  u,
		"token": token,
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req users.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	u, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// Always 401 for credential failures; never leak which part was wrong.
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "invalid credentials",
		})
		return
	}

	token, err := h.tokens.Issue(u.ID, u.Email, u.Name, u.Role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "login successful", gin.H{
		"user":  u,
		"token": token,
	})
}

// Me handles GET /auth/me. Returns the authenticated participant.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := identity.ClaimsFromCtx(c)
	userID, err := claims.SubjectID()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	u, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "", u)
}
