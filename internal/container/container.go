package container

import (
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/config"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/application"
)

// app-level container to share constructed components across packages
// Router can auto-wire modules from these singletons.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	esClient    *elasticsearch.Client

	commandPublisher *application.CommandPublisher
	tokenService     *application.TokenService
	userQueries      *application.UserQueries
	usersGateway     application.UsersGateway
)

func SetConfig(c *config.Config)    { cfg = c }
func GetConfig() *config.Config     { return cfg }
func SetLogger(l *logrus.Logger)    { logger = l }
func GetLogger() *logrus.Logger     { return logger }
func SetPGPool(p *pgxpool.Pool)     { pgPool = p }
func GetPGPool() *pgxpool.Pool      { return pgPool }
func SetRedis(r *redis.Client)      { redisClient = r }
func GetRedis() *redis.Client       { return redisClient }
func SetES(c *elasticsearch.Client) { esClient = c }
func GetES() *elasticsearch.Client  { return esClient }

func SetCommandPublisher(p *application.CommandPublisher) { commandPublisher = p }
func GetCommandPublisher() *application.CommandPublisher  { return commandPublisher }
func SetTokenService(s *application.TokenService)         { tokenService = s }
func GetTokenService() *application.TokenService          { return tokenService }
func SetUserQueries(q *application.UserQueries)           { userQueries = q }
func GetUserQueries() *application.UserQueries            { return userQueries }
func SetUsersGateway(g application.UsersGateway)          { usersGateway = g }
func GetUsersGateway() application.UsersGateway           { return usersGateway }
