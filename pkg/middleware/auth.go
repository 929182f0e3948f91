package middleware

import (
	"strings"

	"github.com/founoun2/FollowMe/pkg/config"
	"github.com/founoun2/FollowMe/pkg/errutil"
	"github.com/founoun2/FollowMe/pkg/rediskey"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// AuthMiddleware is the session-checking gin middleware as an injectable type.
type AuthMiddleware gin.HandlerFunc

var Module = fx.Module("middleware",
	fx.Provide(ProvideAuth),
)

type AuthParams struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func ProvideAuth(p AuthParams) AuthMiddleware {
	return AuthMiddleware(Auth(p.Config.Session.Secret, p.Redis))
}

const (
	// UserIDKey is the gin context key holding the authenticated user id.
	UserIDKey = "user_id"
	// SessionIDKey is the gin context key holding the session id from the token.
	SessionIDKey = "session_id"
)

// SessionClaims are the JWT claims issued at login.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Auth validates the bearer token and rejects revoked sessions.
func Auth(secret string, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.Error(errutil.Unauthorized("missing bearer token", nil))
			c.Abort()
			return
		}

		claims := &SessionClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid {
			c.Error(errutil.Unauthorized("invalid session token", err))
			c.Abort()
			return
		}

		if rdb != nil && claims.SessionID != "" {
			revoked, err := rdb.Exists(c.Request.Context(), rediskey.BuildRevokedSessionKey(claims.SessionID)).Result()
			if err == nil && revoked > 0 {
				c.Error(errutil.Unauthorized("session revoked", nil))
				c.Abort()
				return
			}
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(SessionIDKey, claims.SessionID)
		c.Next()
	}
}

// UserID returns the authenticated user id from the gin context.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
