package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astra/backend/internal/database"
	"astra/backend/internal/middleware"
)

func TestUpdateStreak(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	mon := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

	res, err := UpdateStreak(ctx, store, "u", mon)
	require.NoError(t, err)
	assert.Equal(t, 1, res.StreakCount)
	assert.True(t, res.Updated)

	res, err = UpdateStreak(ctx, store, "u", mon.Add(10*time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, 1, res.StreakCount)

	day := mon
	for i := 2; i <= 7; i++ {
		day = day.AddDate(0, 0, 1)
		res, err = UpdateStreak(ctx, store, "u", day)
		require.NoError(t, err)
		assert.Equal(t, i, res.StreakCount)
	}
	assert.Contains(t, res.MilestoneMessage, "7-day streak")

	res, err = UpdateStreak(ctx, store, "u", day.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, res.StreakCount)
	assert.Empty(t, res.MilestoneMessage)

	settings, err := store.GetSettings(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1.0, settings.Speed)
}

func TestMilestone(t *testing.T) {
	assert.Equal(t, "", milestone(3))
	assert.Contains(t, milestone(14), "Congratulations")
	assert.Contains(t, milestone(30), "Amazing")
	assert.Contains(t, milestone(210), "Amazing")
}

func TestLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := database.NewMemoryStore()
	h := &SessionHandler{
		Users:    store,
		Settings: store,
		Now:      func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) },
	}

	r := gin.New()
	r.POST("/session", func(c *gin.Context) {
		token := &fbauth.Token{UID: "uid-1", Claims: map[string]interface{}{"email": "a@b.c", "name": "Ada"}}
		c.Request = c.Request.WithContext(middleware.WithToken(c.Request.Context(), token))
		h.Login(c)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/session", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"user"`
		Streak StreakResult `json:"streak"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "uid-1", body.User.ID)
	assert.Equal(t, "a@b.c", body.User.Email)
	assert.Equal(t, "Ada", body.User.Name)
	assert.Equal(t, 1, body.Streak.StreakCount)
}

func TestLoginWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := database.NewMemoryStore()
	h := &SessionHandler{Users: store, Settings: store}

	r := gin.New()
	r.POST("/session", h.Login)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/session", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
