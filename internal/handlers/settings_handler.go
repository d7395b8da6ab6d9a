package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"astra/backend/internal/apperr"
	"astra/backend/internal/auth"
	"astra/backend/internal/models"
)

// GetSettings returns the caller's settings, or the defaults when nothing
// has been saved yet.
func (h *Handler) GetSettings(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	settings, err := h.Store.GetSettings(ctx, uid)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			respondError(c, fmt.Errorf("get settings: %w", err))
			return
		}
		settings = models.DefaultSettings(uid)
	}
	c.JSON(http.StatusOK, settings)
}

// SettingsPayload holds the optional fields a user may change. Absent fields
// keep their stored value.
type SettingsPayload struct {
	Speed        *float64 `json:"speed" binding:"omitempty,gt=0,lte=4"`
	PageGoal     *int     `json:"page_goal" binding:"omitempty,gte=0"`
	DurationGoal *float64 `json:"duration_goal" binding:"omitempty,gte=0"`
	VoiceID      *string  `json:"voice_id"`
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var payload SettingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	settings, err := h.Store.GetSettings(ctx, uid)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			respondError(c, fmt.Errorf("get settings: %w", err))
			return
		}
		settings = models.DefaultSettings(uid)
	}

	if payload.VoiceID != nil {
		if _, err := h.Store.GetVoice(ctx, *payload.VoiceID); err != nil {
			respondError(c, notFoundAs(err, "voice"))
			return
		}
		settings.VoiceID = payload.VoiceID
	}
	if payload.Speed != nil {
		settings.Speed = *payload.Speed
	}
	if payload.PageGoal != nil {
		settings.PageGoal = payload.PageGoal
	}
	if payload.DurationGoal != nil {
		settings.DurationGoal = payload.DurationGoal
	}

	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		respondError(c, fmt.Errorf("save settings: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully.", "settings": settings})
}

// UpdateStreak counts today toward the caller's reading streak.
func (h *Handler) UpdateStreak(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := auth.UpdateStreak(ctx, h.Store, uid, h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
