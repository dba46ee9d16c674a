package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/http"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/middleware"
)

type AuthModule struct {
	Handler *handlers.AuthHandler
	Auth    gin.HandlerFunc
	Counter middleware.WindowCounter
}

func NewAuthModule(h *handlers.AuthHandler, auth gin.HandlerFunc, counter middleware.WindowCounter) *AuthModule {
	return &AuthModule{Handler: h, Auth: auth, Counter: counter}
}

func (m *AuthModule) Name() string { return "auth" }

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	loginLimiter := middleware.RateLimit(m.Counter, 10, time.Minute, middleware.KeyByIP(), nil) // 10 req/min per IP
	registerLimiter := middleware.RateLimit(m.Counter, 5, time.Minute, middleware.KeyByIPAndPath(), nil)
	tokenLimiter := middleware.RateLimit(m.Counter, 120, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())

	auth := rg.Group("/auth")
	auth.POST("/register", registerLimiter, m.Handler.Register)
	auth.POST("/login", loginLimiter, m.Handler.Login)
	auth.POST("/validate-token", tokenLimiter, m.Handler.ValidateToken)
	auth.POST("/revoke", tokenLimiter, m.Handler.Revoke)

	protected := auth.Group("")
	protected.Use(m.Auth)
	{
		protected.GET("/me", m.Handler.Me)
	}
}
