package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"homecare-ai/internal/app"
	"homecare-ai/internal/transport/http/response"
)

const (
	ContextSessionKey = "session"
	ContextTokenIDKey = "token_id"
)

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (app.Session, string, error)
}

// AuthJWT requires a bearer token whose server-side session is still live.
func AuthJWT(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		session, tokenID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, app.ErrSessionExpired):
				response.Error(c, 401, response.CodeSessionExpired, "session expired or revoked")
			case errors.Is(err, app.ErrInvalidCredential):
				response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			default:
				response.Error(c, 500, response.CodeInternalServer, "verify session failed")
			}
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, session)
		c.Set(ContextTokenIDKey, tokenID)
		c.Next()
	}
}

// SessionFrom returns the session AuthJWT stored on the request.
func SessionFrom(c *gin.Context) (app.Session, bool) {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return app.Session{}, false
	}
	session, ok := v.(app.Session)
	return session, ok && session.Username != ""
}
