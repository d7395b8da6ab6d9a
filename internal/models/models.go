// ./astra-backend/internal/models/models.go
package models

import (
	"time"
)

type User struct {
	ID        string    `bson:"_id" json:"id"`
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	Picture   string    `bson:"picture" json:"picture"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

type Folder struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	ParentID  string    `bson:"parentId" json:"parent_id"`
	OwnerID   string    `bson:"ownerId" json:"owner_id"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// Document is an uploaded PDF, or the PDF rendered from an OCR'd image.
// Length is the page count and never changes after upload.
type Document struct {
	ID        string    `bson:"_id" json:"id"`
	Title     string    `bson:"title" json:"title"`
	OwnerID   string    `bson:"ownerId" json:"owner_id"`
	FolderID  string    `bson:"folderId" json:"folder_id"`
	FilePath  string    `bson:"filePath" json:"file_path"`
	IsScanned bool      `bson:"isScanned" json:"is_scanned"`
	Length    int       `bson:"length" json:"length"`
	Progress  int       `bson:"progress" json:"progress"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

type Note struct {
	ID         string    `bson:"_id" json:"id"`
	DocumentID string    `bson:"documentId" json:"document_id"`
	Title      string    `bson:"title" json:"title"`
	Content    string    `bson:"content" json:"content"`
	Page       int       `bson:"page" json:"page"`
	CreatedAt  time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updated_at"`
}

type Bookmark struct {
	ID          string    `bson:"_id" json:"id"`
	DocumentID  string    `bson:"documentId" json:"document_id"`
	Page        int       `bson:"page" json:"page"`
	Description string    `bson:"description" json:"description"`
	CreatedAt   time.Time `bson:"createdAt" json:"created_at"`
}

// Voice names an external synthesis model, e.g. "tts_models/en/ljspeech/vits"
// or "openai/tts-1/alloy".
type Voice struct {
	ID   string `bson:"_id" json:"voice_id" yaml:"voice_id"`
	Name string `bson:"name" json:"name" yaml:"name"`
}

type AudiobookStatus string

const (
	AudiobookPending    AudiobookStatus = "pending"
	AudiobookProcessing AudiobookStatus = "processing"
	AudiobookCompleted  AudiobookStatus = "completed"
	AudiobookFailed     AudiobookStatus = "failed"
)

// Audiobook is keyed by (DocumentID, VoiceID, UserID). FilePath is planned at
// creation and only materializes once the background job succeeds.
type Audiobook struct {
	ID         string          `bson:"_id" json:"audiobook_id"`
	DocumentID string          `bson:"documentId" json:"document_id"`
	VoiceID    string          `bson:"voiceId" json:"voice_id"`
	UserID     string          `bson:"userId" json:"user_id"`
	FilePath   string          `bson:"filePath" json:"file_path"`
	Progress   float64         `bson:"progress" json:"progress"`
	Duration   float64         `bson:"duration" json:"duration"`
	Status     AudiobookStatus `bson:"status" json:"status"`
	Error      string          `bson:"error,omitempty" json:"error,omitempty"`
	RemoteID   string          `bson:"remoteId,omitempty" json:"remote_id,omitempty"`
	CreatedAt  time.Time       `bson:"createdAt" json:"created_at"`
	UpdatedAt  time.Time       `bson:"updatedAt" json:"updated_at"`
}

// AudiobookResult is the terminal state persisted by a background job.
type AudiobookResult struct {
	Status   AudiobookStatus
	Error    string
	Duration float64
	RemoteID string
}

type Settings struct {
	UserID        string     `bson:"_id" json:"user_id"`
	Speed         float64    `bson:"speed" json:"speed"`
	StreakCount   int        `bson:"streakCount" json:"streak_count"`
	LastLoginDate *time.Time `bson:"lastLoginDate,omitempty" json:"last_login_date,omitempty"`
	PageGoal      *int       `bson:"pageGoal,omitempty" json:"page_goal,omitempty"`
	DurationGoal  *float64   `bson:"durationGoal,omitempty" json:"duration_goal,omitempty"`
	VoiceID       *string    `bson:"voiceId,omitempty" json:"voice_id,omitempty"`
}

// DefaultSettings is what a user gets before saving anything.
func DefaultSettings(userID string) *Settings {
	return &Settings{UserID: userID, Speed: 1.0}
}
