package router

import (
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/container"
	handlers "github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/http"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/middleware"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/router/modules"
)

func rateCounter() middleware.WindowCounter {
	if rdb := container.GetRedis(); rdb != nil {
		return middleware.RedisCounter{RDB: rdb}
	}
	return nil
}

// InitModules builds every module from the container singletons and adds it
// to the registry. Call once at startup after the container is populated.
func InitModules(r *Registry) {
	logger := container.GetLogger()
	tokens := container.GetTokenService()
	queries := container.GetUserQueries()
	counter := rateCounter()
	auth := middleware.BearerAuth(tokens)

	userHandler := handlers.NewUserHandler(container.GetCommandPublisher(), queries, logger)
	authHandler := handlers.NewAuthHandler(tokens, container.GetUsersGateway(), queries, logger)

	r.Add(modules.NewUserModule(userHandler, auth, counter))
	r.Add(modules.NewAuthModule(authHandler, auth, counter))
	if cfg := container.GetConfig(); cfg != nil && cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(counter, container.GetPGPool(), container.GetES() != nil))
	}
}
