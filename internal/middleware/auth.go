package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// A private key for context access
type contextKey string

const userContextKey = contextKey("user")

// TokenVerifier checks a Firebase ID token. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthMiddleware creates a middleware that verifies Firebase ID tokens.
func AuthMiddleware(client TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.Request.Header.Get("Authorization")

		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		token, err := client.VerifyIDToken(c.Request.Context(), tokenString)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("error verifying Firebase ID token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid auth token"})
			return
		}

		// Store the verified token claims in the context for handlers to use
		ctx := WithToken(c.Request.Context(), token)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// WithToken stores a verified token on ctx.
func WithToken(ctx context.Context, token *auth.Token) context.Context {
	return context.WithValue(ctx, userContextKey, token)
}

// ForContext finds the user from the context.
func ForContext(ctx context.Context) *auth.Token {
	raw, _ := ctx.Value(userContextKey).(*auth.Token)
	return raw
}

// UserID is the Firebase UID of the caller, or "" outside AuthMiddleware.
func UserID(ctx context.Context) string {
	if t := ForContext(ctx); t != nil {
		return t.UID
	}
	return ""
}
