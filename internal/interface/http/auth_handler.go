package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/application"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/middleware"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/response"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/validation"
)

type AuthHandler struct {
	Tokens  *application.TokenService
	Users   application.UsersGateway
	Queries *application.UserQueries
	Logger  *logrus.Logger
}

func NewAuthHandler(tokens *application.TokenService, users application.UsersGateway, queries *application.UserQueries, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{Tokens: tokens, Users: users, Queries: queries, Logger: logger}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=200"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type loginView struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type validationView struct {
	IsValid   bool       `json:"is_valid"`
	UserID    string     `json:"user_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Register creates the user synchronously so the caller can log in at once.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	u, err := h.Users.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	var ve *entity.ValidationError
	switch {
	case errors.As(err, &ve):
		response.Fail(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(ve))
		return
	case errors.Is(err, repo.ErrDuplicateEmail):
		response.Fail(c, http.StatusConflict, "email already registered", nil)
		return
	case err != nil:
		h.logError(c, "register failed", err)
		response.Fail(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	response.OK(c, http.StatusCreated, toUserView(u), "user registered")
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	tok, err := h.Tokens.IssueToken(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, application.ErrInvalidCredentials) {
		response.Fail(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	if err != nil {
		h.logError(c, "issue token failed", err)
		response.Fail(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	response.OK(c, http.StatusOK, loginView{
		AccessToken: tok.Value,
		TokenType:   "bearer",
		ExpiresAt:   tok.ExpiresAt,
	}, "login successful")
}

// ValidateToken answers 200 for a usable token and 401 otherwise; both carry
// the validation result.
func (h *AuthHandler) ValidateToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	res, err := h.Tokens.ValidateToken(c.Request.Context(), req.Token)
	if err != nil {
		h.logError(c, "validate token failed", err)
		response.Fail(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	if !res.IsValid {
		out := response.Error[any](c, http.StatusUnauthorized, "token invalid", nil)
		out.Data = validationView{IsValid: false, Reason: res.Reason}
		c.AbortWithStatusJSON(out.Status, out)
		return
	}
	exp := res.ExpiresAt
	response.OK(c, http.StatusOK, validationView{IsValid: true, UserID: res.UserID, ExpiresAt: &exp}, "token valid")
}

func (h *AuthHandler) Revoke(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	err := h.Tokens.RevokeToken(c.Request.Context(), req.Token)
	if errors.Is(err, application.ErrTokenInvalid) {
		response.Fail(c, http.StatusUnauthorized, "token invalid", nil)
		return
	}
	if err != nil {
		h.logError(c, "revoke token failed", err)
		response.Fail(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	response.OK(c, http.StatusOK, gin.H{"revoked": true}, "token revoked")
}

// Me returns the user behind the bearer token.
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.Queries.GetUser(c.Request.Context(), c.GetString(middleware.CtxUserIDKey))
	if errors.Is(err, application.ErrUserNotFound) {
		response.Fail(c, http.StatusNotFound, "user not found", nil)
		return
	}
	if err != nil {
		h.logError(c, "load user failed", err)
		response.Fail(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	response.OK(c, http.StatusOK, toUserView(u), "profile")
}

func (h *AuthHandler) logError(c *gin.Context, msg string, err error) {
	if h.Logger != nil {
		h.Logger.WithError(err).WithField("request_id", c.GetString("request_id")).Error(msg)
	}
}
