package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astra/backend/internal/apperr"
	"astra/backend/internal/models"
)

func TestMemoryStoreAudiobookUniqueKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := &models.Audiobook{DocumentID: "d1", VoiceID: "v1", UserID: "u1", Status: models.AudiobookPending}
	require.NoError(t, s.CreateAudiobook(ctx, first))
	require.NotEmpty(t, first.ID)

	dup := &models.Audiobook{DocumentID: "d1", VoiceID: "v1", UserID: "u1"}
	assert.ErrorIs(t, s.CreateAudiobook(ctx, dup), apperr.ErrDuplicate)

	otherUser := &models.Audiobook{DocumentID: "d1", VoiceID: "v1", UserID: "u2"}
	assert.NoError(t, s.CreateAudiobook(ctx, otherUser))

	found, err := s.FindAudiobook(ctx, "d1", "v1", "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = s.FindAudiobook(ctx, "d1", "v2", "u1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryStoreAudiobookStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ab := &models.Audiobook{DocumentID: "d", VoiceID: "v", UserID: "u", Status: models.AudiobookPending}
	require.NoError(t, s.CreateAudiobook(ctx, ab))

	require.NoError(t, s.UpdateAudiobookProgress(ctx, ab.ID, 0.5))
	require.NoError(t, s.SetAudiobookStatus(ctx, ab.ID, models.AudiobookResult{
		Status:   models.AudiobookCompleted,
		Duration: 12.5,
		RemoteID: "remote",
	}))

	got, err := s.GetAudiobook(ctx, ab.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AudiobookCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	assert.Equal(t, 12.5, got.Duration)
	assert.Equal(t, "remote", got.RemoteID)

	assert.ErrorIs(t, s.SetAudiobookStatus(ctx, "missing", models.AudiobookResult{}), apperr.ErrNotFound)
}

func TestMemoryStoreListsOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.AllowDuplicateAudiobooks = true
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.CreateAudiobook(ctx, &models.Audiobook{
			ID: id, DocumentID: "d", VoiceID: "v", UserID: "u",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	rows, err := s.ListAudiobooksByUser(ctx, "u")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
}

func TestMemoryStoreFolderOwnership(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	f := &models.Folder{Name: "Physics", OwnerID: "u1"}
	require.NoError(t, s.CreateFolder(ctx, f))

	assert.ErrorIs(t, s.RenameFolder(ctx, f.ID, "u2", "Chem"), apperr.ErrNotFound)
	require.NoError(t, s.RenameFolder(ctx, f.ID, "u1", "Chemistry"))

	found, err := s.SearchFolders(ctx, "u1", "chem")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Chemistry", found[0].Name)

	require.NoError(t, s.CreateDocument(ctx, &models.Document{ID: "doc", OwnerID: "u1", FolderID: f.ID}))
	require.NoError(t, s.DetachFolder(ctx, "u1", f.ID))
	doc, err := s.GetDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Empty(t, doc.FolderID)
}
