package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/http"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/middleware"
)

// UserModule wires the users context:
// Public: POST /users, GET /users/:id, GET /users?email=, GET /users/search
// Protected: DELETE /users/:id
type UserModule struct {
	Handler *handlers.UserHandler
	Auth    gin.HandlerFunc
	Counter middleware.WindowCounter
}

func NewUserModule(h *handlers.UserHandler, auth gin.HandlerFunc, counter middleware.WindowCounter) *UserModule {
	return &UserModule{Handler: h, Auth: auth, Counter: counter}
}

func (m *UserModule) Name() string { return "user" }

func (m *UserModule) Register(rg *gin.RouterGroup) {
	createLimiter := middleware.RateLimit(m.Counter, 30, time.Minute, middleware.KeyByIPAndPath(), nil)
	readLimiter := middleware.RateLimit(m.Counter, 300, time.Minute, middleware.KeyByIP(), nil)

	users := rg.Group("/users")
	users.POST("", createLimiter, m.Handler.CreateUser)
	users.GET("", readLimiter, m.Handler.GetUserByEmail)
	users.GET("/search", readLimiter, m.Handler.Search)
	users.GET("/:id", readLimiter, m.Handler.GetUser)

	protected := users.Group("")
	protected.Use(m.Auth, middleware.RateLimit(m.Counter, 30, time.Minute, middleware.KeyByUserID(), nil))
	{
		protected.DELETE("/:id", m.Handler.DeactivateUser)
	}
}
