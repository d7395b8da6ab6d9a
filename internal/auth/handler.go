package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"astra/backend/internal/database"
	"astra/backend/internal/middleware"
	"astra/backend/internal/models"
)

// SessionHandler starts an app session for a caller Firebase has already
// authenticated: it records the profile and counts the login toward the
// reading streak.
type SessionHandler struct {
	Users    database.UserStore
	Settings database.SettingsStore
	Now      func() time.Time
}

func (h *SessionHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *SessionHandler) Login(c *gin.Context) {
	token := middleware.ForContext(c.Request.Context())
	if token == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid auth token"})
		return
	}
	log := zerolog.Ctx(c.Request.Context())

	// Find or create a user in our database
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.Users.UpsertUser(ctx, &models.User{
		ID:      token.UID,
		Email:   claim(token.Claims, "email"),
		Name:    claim(token.Claims, "name"),
		Picture: claim(token.Claims, "picture"),
	})
	if err != nil {
		log.Error().Err(err).Str("uid", token.UID).Msg("failed to upsert user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process user data"})
		return
	}

	streak, err := UpdateStreak(ctx, h.Settings, user.ID, h.now())
	if err != nil {
		log.Error().Err(err).Str("uid", token.UID).Msg("failed to update streak")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update streak"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "streak": streak})
}

func claim(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}
