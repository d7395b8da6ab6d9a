package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"astra/backend/internal/apperr"
	"astra/backend/internal/models"
)

// MemoryStore keeps everything in maps. It enforces the same unique key on
// audiobooks as the Mongo index and is used by tests and DB_DRIVER=memory.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	folders    map[string]models.Folder
	documents  map[string]models.Document
	notes      map[string]models.Note
	bookmarks  map[string]models.Bookmark
	voices     map[string]models.Voice
	audiobooks map[string]models.Audiobook
	settings   map[string]models.Settings

	// AllowDuplicateAudiobooks disables the unique key so tests can seed the
	// duplicate rows older deployments may contain.
	AllowDuplicateAudiobooks bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      map[string]models.User{},
		folders:    map[string]models.Folder{},
		documents:  map[string]models.Document{},
		notes:      map[string]models.Note{},
		bookmarks:  map[string]models.Bookmark{},
		voices:     map[string]models.Voice{},
		audiobooks: map[string]models.Audiobook{},
		settings:   map[string]models.Settings{},
	}
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) UpsertUser(_ context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := s.users[u.ID]
	out := *u
	out.UpdatedAt = now
	if ok {
		out.CreatedAt = existing.CreatedAt
	} else {
		out.CreatedAt = now
	}
	s.users[u.ID] = out
	return &out, nil
}

// Folders

func (s *MemoryStore) CreateFolder(_ context.Context, f *models.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = newID()
	}
	s.folders[f.ID] = *f
	return nil
}

func (s *MemoryStore) GetFolder(_ context.Context, id string) (*models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.folders[id]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", id, apperr.ErrNotFound)
	}
	return &f, nil
}

func (s *MemoryStore) ListFolders(_ context.Context, ownerID, parentID string) ([]models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Folder, 0)
	for _, f := range s.folders {
		if f.OwnerID == ownerID && f.ParentID == parentID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RenameFolder(_ context.Context, id, ownerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[id]
	if !ok || f.OwnerID != ownerID {
		return fmt.Errorf("folder %s: %w", id, apperr.ErrNotFound)
	}
	f.Name = name
	f.UpdatedAt = time.Now().UTC()
	s.folders[id] = f
	return nil
}

func (s *MemoryStore) DeleteFolder(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[id]
	if !ok || f.OwnerID != ownerID {
		return fmt.Errorf("folder %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.folders, id)
	return nil
}

func (s *MemoryStore) SearchFolders(_ context.Context, ownerID, query string) ([]models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	out := make([]models.Folder, 0)
	for _, f := range s.folders {
		if f.OwnerID == ownerID && strings.Contains(strings.ToLower(f.Name), q) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Documents

func (s *MemoryStore) CreateDocument(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = newID()
	}
	s.documents[d.ID] = *d
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	return &d, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, ownerID string) ([]models.Document, error) {
	return s.filterDocuments(func(d models.Document) bool { return d.OwnerID == ownerID }), nil
}

func (s *MemoryStore) ListDocumentsInFolder(_ context.Context, ownerID, folderID string) ([]models.Document, error) {
	return s.filterDocuments(func(d models.Document) bool {
		return d.OwnerID == ownerID && d.FolderID == folderID
	}), nil
}

func (s *MemoryStore) SearchDocuments(_ context.Context, ownerID, query string) ([]models.Document, error) {
	q := strings.ToLower(query)
	return s.filterDocuments(func(d models.Document) bool {
		return d.OwnerID == ownerID && strings.Contains(strings.ToLower(d.Title), q)
	}), nil
}

func (s *MemoryStore) filterDocuments(keep func(models.Document) bool) []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Document, 0)
	for _, d := range s.documents {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) MoveDocument(_ context.Context, id, folderID string) error {
	return s.updateDocument(id, func(d *models.Document) { d.FolderID = folderID })
}

func (s *MemoryStore) UpdateDocumentProgress(_ context.Context, id string, progress int) error {
	return s.updateDocument(id, func(d *models.Document) { d.Progress = progress })
}

func (s *MemoryStore) updateDocument(id string, fn func(*models.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	fn(&d)
	s.documents[id] = d
	return nil
}

func (s *MemoryStore) DetachFolder(_ context.Context, ownerID, folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.documents {
		if d.OwnerID == ownerID && d.FolderID == folderID {
			d.FolderID = ""
			s.documents[id] = d
		}
	}
	return nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.documents, id)
	return nil
}

// Notes

func (s *MemoryStore) CreateNote(_ context.Context, n *models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = newID()
	}
	s.notes[n.ID] = *n
	return nil
}

func (s *MemoryStore) GetNote(_ context.Context, id string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
	}
	return &n, nil
}

func (s *MemoryStore) ListNotes(_ context.Context, documentID string) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Note, 0)
	for _, n := range s.notes {
		if n.DocumentID == documentID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out, nil
}

func (s *MemoryStore) UpdateNote(_ context.Context, n *models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[n.ID]; !ok {
		return fmt.Errorf("note %s: %w", n.ID, apperr.ErrNotFound)
	}
	s.notes[n.ID] = *n
	return nil
}

func (s *MemoryStore) DeleteNote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.notes, id)
	return nil
}

func (s *MemoryStore) DeleteNotesForDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.notes {
		if n.DocumentID == documentID {
			delete(s.notes, id)
		}
	}
	return nil
}

// Bookmarks

func (s *MemoryStore) CreateBookmark(_ context.Context, b *models.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = newID()
	}
	s.bookmarks[b.ID] = *b
	return nil
}

func (s *MemoryStore) GetBookmark(_ context.Context, id string) (*models.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookmarks[id]
	if !ok {
		return nil, fmt.Errorf("bookmark %s: %w", id, apperr.ErrNotFound)
	}
	return &b, nil
}

func (s *MemoryStore) ListBookmarks(_ context.Context, documentID string) ([]models.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Bookmark, 0)
	for _, b := range s.bookmarks {
		if b.DocumentID == documentID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out, nil
}

func (s *MemoryStore) DeleteBookmark(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookmarks[id]; !ok {
		return fmt.Errorf("bookmark %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.bookmarks, id)
	return nil
}

func (s *MemoryStore) DeleteBookmarksForDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.bookmarks {
		if b.DocumentID == documentID {
			delete(s.bookmarks, id)
		}
	}
	return nil
}

// Voices

func (s *MemoryStore) UpsertVoice(_ context.Context, v *models.Voice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voices[v.ID] = *v
	return nil
}

func (s *MemoryStore) GetVoice(_ context.Context, id string) (*models.Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.voices[id]
	if !ok {
		return nil, fmt.Errorf("voice %s: %w", id, apperr.ErrNotFound)
	}
	return &v, nil
}

func (s *MemoryStore) ListVoices(_ context.Context) ([]models.Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Voice, 0, len(s.voices))
	for _, v := range s.voices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Audiobooks

func (s *MemoryStore) CreateAudiobook(_ context.Context, a *models.Audiobook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.AllowDuplicateAudiobooks {
		for _, existing := range s.audiobooks {
			if existing.DocumentID == a.DocumentID && existing.VoiceID == a.VoiceID && existing.UserID == a.UserID {
				return apperr.ErrDuplicate
			}
		}
	}
	if a.ID == "" {
		a.ID = newID()
	}
	s.audiobooks[a.ID] = *a
	return nil
}

func (s *MemoryStore) GetAudiobook(_ context.Context, id string) (*models.Audiobook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.audiobooks[id]
	if !ok {
		return nil, fmt.Errorf("audiobook %s: %w", id, apperr.ErrNotFound)
	}
	return &a, nil
}

func (s *MemoryStore) FindAudiobook(_ context.Context, documentID, voiceID, userID string) (*models.Audiobook, error) {
	matches := s.filterAudiobooks(func(a models.Audiobook) bool {
		return a.DocumentID == documentID && a.VoiceID == voiceID && a.UserID == userID
	})
	if len(matches) == 0 {
		return nil, fmt.Errorf("audiobook for document %s voice %s: %w", documentID, voiceID, apperr.ErrNotFound)
	}
	return &matches[0], nil
}

func (s *MemoryStore) ListAudiobooksByUser(_ context.Context, userID string) ([]models.Audiobook, error) {
	return s.filterAudiobooks(func(a models.Audiobook) bool { return a.UserID == userID }), nil
}

func (s *MemoryStore) ListAudiobooksByDocument(_ context.Context, documentID string) ([]models.Audiobook, error) {
	return s.filterAudiobooks(func(a models.Audiobook) bool { return a.DocumentID == documentID }), nil
}

func (s *MemoryStore) filterAudiobooks(keep func(models.Audiobook) bool) []models.Audiobook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Audiobook, 0)
	for _, a := range s.audiobooks {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) UpdateAudiobookProgress(_ context.Context, id string, progress float64) error {
	return s.updateAudiobook(id, func(a *models.Audiobook) { a.Progress = progress })
}

func (s *MemoryStore) SetAudiobookStatus(_ context.Context, id string, res models.AudiobookResult) error {
	return s.updateAudiobook(id, func(a *models.Audiobook) {
		a.Status = res.Status
		a.Error = res.Error
		if res.Status == models.AudiobookCompleted {
			a.Progress = 1
			a.Duration = res.Duration
			a.RemoteID = res.RemoteID
		}
	})
}

func (s *MemoryStore) updateAudiobook(id string, fn func(*models.Audiobook)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audiobooks[id]
	if !ok {
		return fmt.Errorf("audiobook %s: %w", id, apperr.ErrNotFound)
	}
	fn(&a)
	a.UpdatedAt = time.Now().UTC()
	s.audiobooks[id] = a
	return nil
}

func (s *MemoryStore) DeleteAudiobook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audiobooks[id]; !ok {
		return fmt.Errorf("audiobook %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.audiobooks, id)
	return nil
}

// Settings

func (s *MemoryStore) GetSettings(_ context.Context, userID string) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[userID]
	if !ok {
		return nil, fmt.Errorf("settings for %s: %w", userID, apperr.ErrNotFound)
	}
	return &st, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, st *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[st.UserID] = *st
	return nil
}
