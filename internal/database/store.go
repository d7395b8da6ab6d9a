package database

import (
	"context"

	"astra/backend/internal/models"
)

// Lookups return an error matching apperr.ErrNotFound when nothing matches.
// Inserts that violate a unique key return apperr.ErrDuplicate.

type UserStore interface {
	UpsertUser(ctx context.Context, u *models.User) (*models.User, error)
}

type FolderStore interface {
	CreateFolder(ctx context.Context, f *models.Folder) error
	GetFolder(ctx context.Context, id string) (*models.Folder, error)
	ListFolders(ctx context.Context, ownerID, parentID string) ([]models.Folder, error)
	RenameFolder(ctx context.Context, id, ownerID, name string) error
	DeleteFolder(ctx context.Context, id, ownerID string) error
	SearchFolders(ctx context.Context, ownerID, query string) ([]models.Folder, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, d *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error)
	ListDocumentsInFolder(ctx context.Context, ownerID, folderID string) ([]models.Document, error)
	MoveDocument(ctx context.Context, id, folderID string) error
	UpdateDocumentProgress(ctx context.Context, id string, progress int) error
	DetachFolder(ctx context.Context, ownerID, folderID string) error
	DeleteDocument(ctx context.Context, id string) error
	SearchDocuments(ctx context.Context, ownerID, query string) ([]models.Document, error)
}

type NoteStore interface {
	CreateNote(ctx context.Context, n *models.Note) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	ListNotes(ctx context.Context, documentID string) ([]models.Note, error)
	UpdateNote(ctx context.Context, n *models.Note) error
	DeleteNote(ctx context.Context, id string) error
	DeleteNotesForDocument(ctx context.Context, documentID string) error
}

type BookmarkStore interface {
	CreateBookmark(ctx context.Context, b *models.Bookmark) error
	GetBookmark(ctx context.Context, id string) (*models.Bookmark, error)
	ListBookmarks(ctx context.Context, documentID string) ([]models.Bookmark, error)
	DeleteBookmark(ctx context.Context, id string) error
	DeleteBookmarksForDocument(ctx context.Context, documentID string) error
}

type VoiceStore interface {
	UpsertVoice(ctx context.Context, v *models.Voice) error
	GetVoice(ctx context.Context, id string) (*models.Voice, error)
	ListVoices(ctx context.Context) ([]models.Voice, error)
}

type AudiobookStore interface {
	CreateAudiobook(ctx context.Context, a *models.Audiobook) error
	GetAudiobook(ctx context.Context, id string) (*models.Audiobook, error)
	FindAudiobook(ctx context.Context, documentID, voiceID, userID string) (*models.Audiobook, error)
	// ListAudiobooksByUser returns rows oldest first.
	ListAudiobooksByUser(ctx context.Context, userID string) ([]models.Audiobook, error)
	ListAudiobooksByDocument(ctx context.Context, documentID string) ([]models.Audiobook, error)
	UpdateAudiobookProgress(ctx context.Context, id string, progress float64) error
	SetAudiobookStatus(ctx context.Context, id string, res models.AudiobookResult) error
	DeleteAudiobook(ctx context.Context, id string) error
}

type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (*models.Settings, error)
	SaveSettings(ctx context.Context, s *models.Settings) error
}

// Store is everything the HTTP layer needs from the datastore.
type Store interface {
	UserStore
	FolderStore
	DocumentStore
	NoteStore
	BookmarkStore
	VoiceStore
	AudiobookStore
	SettingsStore
	Close(ctx context.Context) error
}
