package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/application"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/response"
)

const (
	CtxUserIDKey = "userID"
	CtxTokenKey  = "token"
)

// TokenValidator is the part of the token service the middleware needs.
type TokenValidator interface {
	ValidateToken(ctx context.Context, value string) (application.ValidationResult, error)
}

// BearerAuth reads "Authorization: Bearer <token>", validates it against the
// token store and sets userID in the Gin context on success.
func BearerAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Fail(c, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		res, err := tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Fail(c, http.StatusServiceUnavailable, "token check unavailable", nil)
			return
		}
		if !res.IsValid {
			response.Fail(c, http.StatusUnauthorized, "invalid access token", gin.H{"reason": res.Reason})
			return
		}
		c.Set(CtxUserIDKey, res.UserID)
		c.Set(CtxTokenKey, token)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}
