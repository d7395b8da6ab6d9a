package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"astra/backend/internal/apperr"
	"astra/backend/internal/database"
	"astra/backend/internal/models"
)

// StreakResult is what a login does to a user's streak.
type StreakResult struct {
	StreakCount      int    `json:"streak_count"`
	Updated          bool   `json:"updated"`
	Message          string `json:"message"`
	MilestoneMessage string `json:"milestone_message,omitempty"`
}

// UpdateStreak records a login on the UTC day of now. Consecutive days extend
// the streak, a gap resets it to 1 and a second login the same day changes
// nothing. Settings are created with defaults on first use.
func UpdateStreak(ctx context.Context, store database.SettingsStore, userID string, now time.Time) (*StreakResult, error) {
	settings, err := store.GetSettings(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("get settings: %w", err)
		}
		settings = models.DefaultSettings(userID)
	}

	today := day(now)
	if settings.LastLoginDate != nil {
		last := day(*settings.LastLoginDate)
		switch {
		case today.Equal(last):
			return &StreakResult{StreakCount: settings.StreakCount, Message: "Streak already updated today."}, nil
		case today.Equal(last.AddDate(0, 0, 1)):
			settings.StreakCount++
		default:
			settings.StreakCount = 1
		}
	} else {
		settings.StreakCount = 1
	}
	settings.LastLoginDate = &today

	if err := store.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return &StreakResult{
		StreakCount:      settings.StreakCount,
		Updated:          true,
		Message:          "Streak updated successfully.",
		MilestoneMessage: milestone(settings.StreakCount),
	}, nil
}

func milestone(streak int) string {
	switch {
	case streak%30 == 0:
		return fmt.Sprintf("Amazing! You've reached a %d-day streak!", streak)
	case streak%7 == 0:
		return fmt.Sprintf("Congratulations! You've reached a %d-day streak!", streak)
	}
	return ""
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
