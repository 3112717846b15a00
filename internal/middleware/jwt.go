package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/journiv/internal/pkg/errcode"
	"github.com/xxxsen/journiv/internal/pkg/jwt"
	"github.com/xxxsen/journiv/internal/pkg/response"
)

// ContextUserIDKey holds the authenticated owner id. Every job and media
// lookup downstream is scoped by it.
const ContextUserIDKey = "user_id"

func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, errcode.ErrUnauthorized, "missing authorization")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Abort(c, errcode.ErrUnauthorized, "invalid authorization")
			return
		}
		claims, err := jwt.ParseToken(strings.TrimSpace(token), secret)
		if err != nil {
			response.Abort(c, errcode.ErrUnauthorized, "invalid token")
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Next()
	}
}
