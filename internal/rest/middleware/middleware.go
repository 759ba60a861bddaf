package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the caller's user ID.
const UserIDKey = "user_id"

// UserIDHeader carries the caller identity set by the session layer in front
// of this service.
const UserIDHeader = "X-User-ID"

// SetRequestContextWithTimeout bounds every request context by d.
func SetRequestContextWithTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CORS will handle the CORS middleware
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+UserIDHeader)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func parseUser(c *gin.Context) (int64, bool) {
	uid, err := strconv.ParseInt(c.GetHeader(UserIDHeader), 10, 64)
	if err != nil || uid <= 0 {
		return 0, false
	}
	return uid, true
}

// RequireUser rejects requests without a valid caller identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := parseUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// OptionalUser sets the caller identity when one is present.
func OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid, ok := parseUser(c); ok {
			c.Set(UserIDKey, uid)
		}
		c.Next()
	}
}
