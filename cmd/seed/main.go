package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/oksasatya/go-cqrs-bounded-contexts/config"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/application"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/container"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/command"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/helpers"
)

func main() {
	_ = godotenv.Load()

	name := flag.String("name", "Demo User", "display name")
	email := flag.String("email", "demo@example.com", "login email")
	password := flag.String("password", "password123", "plain password")
	viaQueue := flag.Bool("via-queue", false, "publish a CreateUser command instead of writing directly")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)
	ctx := context.Background()

	if *viaQueue {
		broker, err := container.OpenBroker(ctx, cfg, logger)
		if err != nil {
			log.Fatalf("broker: %v", err)
		}
		defer broker.Close()

		pub := application.NewCommandPublisher(broker.Publisher, cfg.RabbitMQUserCommandsQueue, logger)
		id, err := pub.Publish(ctx, command.CreateUser{Name: *name, Email: *email, Password: *password})
		if err != nil {
			log.Fatalf("publish: %v", err)
		}
		fmt.Printf("queued CreateUser: command_id=%s email=%s\n", id, *email)
		return
	}

	store, err := container.OpenStorage(ctx, cfg, logger, true)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	gateway := application.NewDirectUsersGateway(store.Users, container.NewHasher(cfg), logger)
	u, err := gateway.Register(ctx, *name, *email, *password)
	if errors.Is(err, repo.ErrDuplicateEmail) {
		existing, findErr := gateway.FindByEmail(ctx, *email)
		if findErr != nil {
			log.Fatalf("load existing user: %v", findErr)
		}
		fmt.Printf("user already seeded: id=%s email=%s\n", existing.ID, existing.Email)
		return
	}
	if err != nil {
		log.Fatalf("failed to seed user: %v", err)
	}
	fmt.Printf("seeded user: id=%s email=%s name=%s password=%s\n", u.ID, u.Email, u.Name, *password)
}
