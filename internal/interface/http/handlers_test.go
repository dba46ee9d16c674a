package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/application"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/command"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/memory"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/memqueue"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/interface/middleware"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/messaging"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/helpers"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/validation"
)

const queue = "user.commands"

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type downBroker struct{}

func (downBroker) Publish(context.Context, string, messaging.Message) error {
	return errors.New("connection closed")
}

type server struct {
	engine *gin.Engine
	broker *memqueue.Broker
	users  *memory.UserRepository
}

func newServer(t *testing.T, pub messaging.Publisher) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Init()
	logger, _ := test.NewNullLogger()

	s := &server{broker: memqueue.NewBroker(16), users: memory.NewUserRepository()}
	if pub == nil {
		pub = s.broker
	}
	hasher := helpers.NewBcryptHasher(4)
	gateway := application.NewDirectUsersGateway(s.users, hasher, logger)
	tokens := application.NewTokenService(gateway, memory.NewTokenRepository(), hasher, helpers.NewRandomMinter(), time.Hour, logger)
	queries := application.NewUserQueries(s.users, nil)

	uh := NewUserHandler(application.NewCommandPublisher(pub, queue, logger), queries, logger)
	ah := NewAuthHandler(tokens, gateway, queries, logger)
	auth := middleware.BearerAuth(tokens)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	api := r.Group("/api")
	api.POST("/users", uh.CreateUser)
	api.GET("/users", uh.GetUserByEmail)
	api.GET("/users/search", uh.Search)
	api.GET("/users/:id", uh.GetUser)
	api.DELETE("/users/:id", auth, uh.DeactivateUser)
	api.POST("/auth/register", ah.Register)
	api.POST("/auth/login", ah.Login)
	api.POST("/auth/validate-token", ah.ValidateToken)
	api.POST("/auth/revoke", ah.Revoke)
	api.GET("/auth/me", auth, ah.Me)

	s.engine = r
	return s
}

func (s *server) do(t *testing.T, method, path string, body any, token string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *server) registerAndLogin(t *testing.T, email string) (userView, string) {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/auth/register", gin.H{"name": "Ana", "email": email, "password": "p1"}, "")
	require.Equal(t, http.StatusCreated, code)
	var u userView
	require.NoError(t, json.Unmarshal(env.Data, &u))

	code, env = s.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": email, "password": "p1"}, "")
	require.Equal(t, http.StatusOK, code)
	var lv loginView
	require.NoError(t, json.Unmarshal(env.Data, &lv))
	return u, lv.AccessToken
}

func TestCreateUser_Accepted(t *testing.T) {
	s := newServer(t, nil)

	code, env := s.do(t, http.MethodPost, "/api/users", gin.H{"name": "Ana", "email": "ana@x.com", "password": "p1"}, "")
	require.Equal(t, http.StatusAccepted, code)
	var acc acceptedView
	require.NoError(t, json.Unmarshal(env.Data, &acc))
	assert.NotEmpty(t, acc.CommandID)

	msgs := s.broker.Drain(queue)
	require.Len(t, msgs, 1)
	decoded, err := command.Decode(msgs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, acc.CommandID, decoded.ID)

	// nothing is written until a worker applies the command
	assert.Zero(t, s.users.Count())
}

func TestCreateUser_InvalidPayload(t *testing.T) {
	s := newServer(t, nil)

	code, env := s.do(t, http.MethodPost, "/api/users", gin.H{"name": "Ana", "email": "nope", "password": "p1"}, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Contains(t, string(env.Error), "email")
	assert.Zero(t, s.broker.Len(queue))
}

func TestCreateUser_MultibytePasswordOverByteLimit(t *testing.T) {
	s := newServer(t, nil)

	// 40 runes, 80 bytes: the worker would dead-letter it, so reject up front
	code, env := s.do(t, http.MethodPost, "/api/users", gin.H{"name": "Ana", "email": "ana@x.com", "password": strings.Repeat("é", 40)}, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(env.Error), "password")
	assert.Zero(t, s.broker.Len(queue))
}

func TestCreateUser_BrokerDown(t *testing.T) {
	s := newServer(t, downBroker{})

	code, env := s.do(t, http.MethodPost, "/api/users", gin.H{"name": "Ana", "email": "ana@x.com", "password": "p1"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.Success)
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t, nil)
	u, token := s.registerAndLogin(t, "ana@x.com")
	require.NotEmpty(t, token)

	code, env := s.do(t, http.MethodPost, "/api/auth/validate-token", gin.H{"token": token}, "")
	require.Equal(t, http.StatusOK, code)
	var vv validationView
	require.NoError(t, json.Unmarshal(env.Data, &vv))
	assert.True(t, vv.IsValid)
	assert.Equal(t, u.ID, vv.UserID)

	code, env = s.do(t, http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusOK, code)
	var me userView
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "ana@x.com", me.Email)

	code, _ = s.do(t, http.MethodPost, "/api/auth/revoke", gin.H{"token": token}, "")
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/api/auth/revoke", gin.H{"token": token}, "")
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodPost, "/api/auth/validate-token", gin.H{"token": token}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NoError(t, json.Unmarshal(env.Data, &vv))
	assert.False(t, vv.IsValid)
	assert.Equal(t, application.ReasonRevoked, vv.Reason)

	code, _ = s.do(t, http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRegister_Duplicate(t *testing.T) {
	s := newServer(t, nil)
	s.registerAndLogin(t, "ana@x.com")

	code, _ := s.do(t, http.MethodPost, "/api/auth/register", gin.H{"name": "Other", "email": "ANA@x.com", "password": "p2"}, "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newServer(t, nil)
	s.registerAndLogin(t, "ana@x.com")

	code, env := s.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "ana@x.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid credentials", env.Message)

	code, _ = s.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "nobody@x.com", "password": "p1"}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRevoke_UnknownToken(t *testing.T) {
	s := newServer(t, nil)
	code, _ := s.do(t, http.MethodPost, "/api/auth/revoke", gin.H{"token": "never-issued"}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMe_RequiresBearer(t *testing.T) {
	s := newServer(t, nil)
	code, env := s.do(t, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing bearer token", env.Message)
}

func TestGetUser(t *testing.T) {
	s := newServer(t, nil)
	u, _ := s.registerAndLogin(t, "ana@x.com")

	code, env := s.do(t, http.MethodGet, "/api/users/"+u.ID, nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "password")

	code, _ = s.do(t, http.MethodGet, "/api/users?email=ANA@x.com", nil, "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/api/users/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodGet, "/api/users", nil, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSearch_WithoutIndexIsEmpty(t *testing.T) {
	s := newServer(t, nil)
	code, env := s.do(t, http.MethodGet, "/api/users/search?q=ana", nil, "")
	require.Equal(t, http.StatusOK, code)
	var hits []map[string]any
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &hits))
	}
	assert.Empty(t, hits)
}

func TestDeactivateUser(t *testing.T) {
	s := newServer(t, nil)
	u, token := s.registerAndLogin(t, "ana@x.com")
	other, _ := s.registerAndLogin(t, "bob@x.com")

	code, _ := s.do(t, http.MethodDelete, "/api/users/"+other.ID, nil, token)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Zero(t, s.broker.Len(queue))

	code, _ = s.do(t, http.MethodDelete, "/api/users/"+u.ID, nil, token)
	assert.Equal(t, http.StatusAccepted, code)

	msgs := s.broker.Drain(queue)
	require.Len(t, msgs, 1)
	decoded, err := command.Decode(msgs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, command.DeactivateUser{UserID: u.ID}, decoded.Payload)
}
