package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/application"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/command"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/middleware"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/response"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/validation"
)

// UserHandler serves the users context. Writes are published as commands and
// answered with 202; reads go straight to UserQueries.
type UserHandler struct {
	Publisher *application.CommandPublisher
	Queries   *application.UserQueries
	Logger    *logrus.Logger
}

func NewUserHandler(pub *application.CommandPublisher, queries *application.UserQueries, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Publisher: pub, Queries: queries, Logger: logger}
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required,max=200"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	h.publish(c, command.CreateUser{Name: req.Name, Email: req.Email, Password: req.Password})
}

// DeactivateUser lets a user deactivate their own account.
func (h *UserHandler) DeactivateUser(c *gin.Context) {
	id := c.Param("id")
	if id != c.GetString(middleware.CtxUserIDKey) {
		response.Fail(c, http.StatusForbidden, "cannot deactivate another user", nil)
		return
	}
	h.publish(c, command.DeactivateUser{UserID: id})
}

func (h *UserHandler) publish(c *gin.Context, cmd command.Command) {
	id, err := h.Publisher.Publish(c.Request.Context(), cmd)
	if err != nil {
		var pf *application.PublishFailedError
		if errors.As(err, &pf) {
			response.Fail(c, http.StatusServiceUnavailable, "command not accepted, retry later", nil)
			return
		}
		response.Fail(c, http.StatusInternalServerError, "internal error", nil)
		return
	}
	response.OK(c, http.StatusAccepted, acceptedView{CommandID: id}, "command accepted")
}

func (h *UserHandler) GetUser(c *gin.Context) {
	u, err := h.Queries.GetUser(c.Request.Context(), c.Param("id"))
	h.renderUser(c, u, err)
}

func (h *UserHandler) GetUserByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.Fail(c, http.StatusBadRequest, "email query parameter is required", nil)
		return
	}
	u, err := h.Queries.GetUserByEmail(c.Request.Context(), email)
	h.renderUser(c, u, err)
}

func (h *UserHandler) renderUser(c *gin.Context, u *entity.User, err error) {
	switch {
	case errors.Is(err, application.ErrUserNotFound):
		response.Fail(c, http.StatusNotFound, "user not found", nil)
	case err != nil:
		h.logError(c, "load user failed", err)
		response.Fail(c, http.StatusInternalServerError, "internal error", nil)
	default:
		response.OK(c, http.StatusOK, toUserView(u), "user")
	}
}

// Search users via Elasticsearch
func (h *UserHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	hits, err := h.Queries.SearchUsers(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		h.logError(c, "search users failed", err)
		response.Fail(c, http.StatusBadGateway, "search unavailable", nil)
		return
	}
	response.OK(c, http.StatusOK, hits, "search results")
}

func (h *UserHandler) logError(c *gin.Context, msg string, err error) {
	if h.Logger != nil {
		h.Logger.WithError(err).WithField("request_id", c.GetString("request_id")).Error(msg)
	}
}
