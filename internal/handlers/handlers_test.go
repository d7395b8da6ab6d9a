package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astra/backend/internal/audiobook"
	"astra/backend/internal/auth"
	"astra/backend/internal/database"
	"astra/backend/internal/models"
)

type stubVerifier map[string]string

func (v stubVerifier) VerifyIDToken(_ context.Context, token string) (*fbauth.Token, error) {
	uid, ok := v[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &fbauth.Token{UID: uid, Claims: map[string]interface{}{"email": uid + "@example.com"}}, nil
}

type toneEngine struct{}

func (toneEngine) Resolve(voice string) (string, error) {
	if !strings.HasPrefix(voice, "tts_models/") {
		return "", errors.New("unknown model")
	}
	return voice, nil
}

func (toneEngine) Synthesize(_ context.Context, _, text, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	data := make([]int, 800)
	for i := range data {
		data[i] = len(text)
	}
	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		return err
	}
	return enc.Close()
}

type stubPages map[string][]string

func (p stubPages) Pages(_ context.Context, path string) ([]string, error) {
	pages, ok := p[path]
	if !ok {
		return nil, errors.New("no such pdf")
	}
	return pages, nil
}

// PageCount reports three pages for any PDF on disk.
func (p stubPages) PageCount(_ context.Context, path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	data, _ := os.ReadFile(path)
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return 0, errors.New("not a pdf")
	}
	return 3, nil
}

type stubOCR struct{ text string }

func (o stubOCR) Recognize(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return o.text, nil
}

// slowOCR takes longer than the datastore budget but honours cancellation.
type slowOCR struct{ delay time.Duration }

func (o slowOCR) Recognize(ctx context.Context, _ string) (string, error) {
	select {
	case <-time.After(o.delay):
		return "slow words", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, text string) (string, error) {
	return "summary of " + text, nil
}

func (stubSummarizer) Keywords(_ context.Context, text string) (string, error) {
	return "kw1, kw2", nil
}

type fixture struct {
	router *gin.Engine
	store  *database.MemoryStore
	runner *audiobook.Runner
	h      *Handler
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := database.NewMemoryStore()
	_, err := audiobook.SeedVoices(context.Background(), store, audiobook.DefaultVoices)
	require.NoError(t, err)

	dir := t.TempDir()
	audioDir := filepath.Join(dir, "audiobooks")
	require.NoError(t, os.MkdirAll(audioDir, 0o755))

	pages := stubPages{"/library/book.pdf": {"Hello there", "Second page"}}
	runner := audiobook.NewRunner(2)
	svc := audiobook.NewService(audiobook.Deps{
		Documents:  store,
		Voices:     store,
		Audiobooks: store,
		Pages:      pages,
		Engine:     toneEngine{},
		Runner:     runner,
		Dir:        audioDir,
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(func() { _ = runner.Shutdown(context.Background()) })

	h := &Handler{
		Store:      store,
		Audiobooks: svc,
		Pages:      pages,
		OCR:        stubOCR{text: "scanned words"},
		RenderPDF: func(title, text, out string) error {
			return os.WriteFile(out, []byte("%PDF-1.4\n"+text), 0o644)
		},
		UploadDir: filepath.Join(dir, "uploads"),
		BaseURL:   "http://api.test",
		Now:       func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) },
	}
	session := &auth.SessionHandler{Users: store, Settings: store}

	router := gin.New()
	Register(router, h, session, stubVerifier{"alice-token": "alice", "bob-token": "bob"}, RouteOptions{
		AudiobookDir:   audioDir,
		MaxUploadBytes: 1 << 20,
	})
	return &fixture{router: router, store: store, runner: runner, h: h, dir: dir}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) upload(t *testing.T, token, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) addDocument(t *testing.T, owner, path string) models.Document {
	t.Helper()
	doc := models.Document{Title: "Book", OwnerID: owner, FilePath: path, Length: 2}
	require.NoError(t, f.store.CreateDocument(context.Background(), &doc))
	return doc
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/documents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionLogin(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/session", "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		User   models.User       `json:"user"`
		Streak auth.StreakResult `json:"streak"`
	}
	decode(t, w, &body)
	assert.Equal(t, "alice", body.User.ID)
	assert.Equal(t, "alice@example.com", body.User.Email)
	assert.Equal(t, 1, body.Streak.StreakCount)
}

func TestFolderLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/folders", "alice-token", gin.H{"name": "Papers"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var parent models.Folder
	decode(t, w, &parent)

	w = f.do(t, http.MethodPost, "/folders", "alice-token", gin.H{"name": "2024", "parent_id": parent.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var child models.Folder
	decode(t, w, &child)

	doc := models.Document{Title: "Filed", OwnerID: "alice", FolderID: child.ID}
	require.NoError(t, f.store.CreateDocument(context.Background(), &doc))

	var roots []models.Folder
	w = f.do(t, http.MethodGet, "/folders?parent_id=root", "alice-token", nil)
	decode(t, w, &roots)
	require.Len(t, roots, 1)
	assert.Equal(t, "Papers", roots[0].Name)

	w = f.do(t, http.MethodPut, "/folders/"+parent.ID, "alice-token", gin.H{"name": "Research"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Other users see nothing.
	w = f.do(t, http.MethodGet, "/folders/"+parent.ID, "bob-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var docs []models.Document
	w = f.do(t, http.MethodGet, "/folders/"+child.ID+"/documents", "alice-token", nil)
	decode(t, w, &docs)
	require.Len(t, docs, 1)

	w = f.do(t, http.MethodDelete, "/folders/"+parent.ID, "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, err := f.store.GetFolder(context.Background(), child.ID)
	assert.Error(t, err)
	got, err := f.store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, got.FolderID)
}

func TestUploadPDF(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "alice-token", "notes.pdf", []byte("%PDF-1.4\n%fake\n"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var doc documentResponse
	decode(t, w, &doc)
	assert.Equal(t, "notes", doc.Title)
	assert.Equal(t, 3, doc.Length)
	assert.False(t, doc.IsScanned)
	assert.FileExists(t, doc.FilePath)
	assert.Equal(t, "http://api.test/media/uploads/"+filepath.Base(doc.FilePath), doc.FileURL)

	var raw map[string]any
	decode(t, w, &raw)
	for _, key := range []string{"file_path", "file_url", "owner_id", "folder_id", "is_scanned", "created_at"} {
		assert.Contains(t, raw, key)
	}
	for _, key := range []string{"filePath", "ownerId", "folderId", "isScanned", "createdAt"} {
		assert.NotContains(t, raw, key)
	}
}

func TestUploadImageIsOCRd(t *testing.T) {
	f := newFixture(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

	w := f.upload(t, "alice-token", "scan.png", png, map[string]string{"title": "Receipt"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var doc documentResponse
	decode(t, w, &doc)
	assert.True(t, doc.IsScanned)
	assert.Equal(t, "Receipt", doc.Title)
	assert.Equal(t, ".pdf", filepath.Ext(doc.FilePath))

	entries, err := os.ReadDir(f.h.UploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the source image is removed")
	data, err := os.ReadFile(doc.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scanned words")
}

func TestUploadOCRIsNotBoundByDatastoreTimeout(t *testing.T) {
	f := newFixture(t)
	f.h.Timeout = 20 * time.Millisecond
	f.h.OCR = slowOCR{delay: 150 * time.Millisecond}
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

	w := f.upload(t, "alice-token", "slow.png", png, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var doc documentResponse
	decode(t, w, &doc)
	assert.True(t, doc.IsScanned)
	data, err := os.ReadFile(doc.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "slow words")
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	f := newFixture(t)
	w := f.upload(t, "alice-token", "notes.txt", []byte("just some text"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.upload(t, "alice-token", "notes.pdf", []byte("%PDF-1.4\n"), map[string]string{"folder_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateProgressClamps(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t, "alice", "/library/book.pdf")

	w := f.do(t, http.MethodPut, "/documents/"+doc.ID+"/progress", "alice-token", gin.H{"progress": 10})
	require.Equal(t, http.StatusOK, w.Code)
	got, err := f.store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Progress)

	w = f.do(t, http.MethodPut, "/documents/"+doc.ID+"/progress", "alice-token", gin.H{"progress": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/documents/"+doc.ID+"/progress", "bob-token", gin.H{"progress": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotesAndBookmarks(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t, "alice", "/library/book.pdf")

	w := f.do(t, http.MethodPost, "/notes", "alice-token", gin.H{"document_id": doc.ID, "title": "Idea", "content": "x", "page": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var note models.Note
	decode(t, w, &note)

	w = f.do(t, http.MethodPost, "/notes", "alice-token", gin.H{"document_id": doc.ID, "title": "Late", "page": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/notes/"+note.ID, "alice-token", gin.H{"content": "revised"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var notes []models.Note
	w = f.do(t, http.MethodGet, "/documents/"+doc.ID+"/notes", "alice-token", nil)
	decode(t, w, &notes)
	require.Len(t, notes, 1)
	assert.Equal(t, "revised", notes[0].Content)
	assert.Equal(t, "Idea", notes[0].Title)

	w = f.do(t, http.MethodDelete, "/notes/"+note.ID, "bob-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/bookmarks", "alice-token", gin.H{"document_id": doc.ID, "page": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	var bm models.Bookmark
	decode(t, w, &bm)

	var bookmarks []models.Bookmark
	w = f.do(t, http.MethodGet, "/documents/"+doc.ID+"/bookmarks", "alice-token", nil)
	decode(t, w, &bookmarks)
	assert.Len(t, bookmarks, 1)

	w = f.do(t, http.MethodDelete, "/bookmarks/"+bm.ID, "alice-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAudiobookLifecycle(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t, "alice", "/library/book.pdf")

	w := f.do(t, http.MethodGet, "/audiobooks/voices", "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var voices struct {
		Voices []models.Voice `json:"voices"`
	}
	decode(t, w, &voices)
	assert.Len(t, voices.Voices, len(audiobook.DefaultVoices))

	w = f.do(t, http.MethodPost, "/audiobooks/generate/"+doc.ID, "alice-token", gin.H{"voice_id": "3"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var started struct {
		Message     string `json:"message"`
		AudiobookID string `json:"audiobook_id"`
		FilePath    string `json:"file_path"`
		FileURL     string `json:"file_url"`
	}
	decode(t, w, &started)
	assert.Equal(t, "Audiobook generation started", started.Message)
	assert.Equal(t, "http://api.test/media/audiobooks/"+doc.ID+"_3.wav", started.FileURL)

	f.runner.Wait()

	w = f.do(t, http.MethodGet, "/audiobooks/status/"+started.AudiobookID, "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status audiobook.StatusReport
	decode(t, w, &status)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, started.FilePath, status.FilePath)

	w = f.do(t, http.MethodGet, "/audiobooks/status/"+started.AudiobookID, "bob-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/audiobooks/generate/"+doc.ID, "alice-token", gin.H{"voice_id": "3"})
	require.Equal(t, http.StatusOK, w.Code)
	var again struct {
		Message     string `json:"message"`
		AudiobookID string `json:"audiobook_id"`
	}
	decode(t, w, &again)
	assert.Equal(t, started.AudiobookID, again.AudiobookID)
	assert.Equal(t, "Audiobook already exists", again.Message)

	w = f.do(t, http.MethodGet, "/audiobooks/user/alice", "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var catalog struct {
		Audiobooks []catalogItem `json:"audiobooks"`
	}
	decode(t, w, &catalog)
	require.Len(t, catalog.Audiobooks, 1)
	assert.Equal(t, "Book", catalog.Audiobooks[0].DocumentTitle)
	assert.Equal(t, started.FileURL, catalog.Audiobooks[0].FileURL)

	w = f.do(t, http.MethodGet, "/audiobooks/user/alice", "bob-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, "/audiobooks/"+started.AudiobookID, "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NoFileExists(t, started.FilePath)

	w = f.do(t, http.MethodGet, "/audiobooks/user/alice", "alice-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateAudiobookErrors(t *testing.T) {
	f := newFixture(t)
	doc := f.addDocument(t, "alice", "/library/book.pdf")

	w := f.do(t, http.MethodPost, "/audiobooks/generate/"+doc.ID, "alice-token", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/audiobooks/generate/"+doc.ID, "alice-token", gin.H{"voice_id": "3", "user_id": "bob"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/audiobooks/generate/missing", "alice-token", gin.H{"voice_id": "3"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/audiobooks/generate/"+doc.ID, "alice-token", gin.H{"voice_id": "99"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/audiobooks/generate/"+doc.ID, "bob-token", gin.H{"voice_id": "3"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDocumentCascades(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "owned.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644))
	doc := f.addDocument(t, "alice", path)

	ctx := context.Background()
	require.NoError(t, f.store.CreateNote(ctx, &models.Note{DocumentID: doc.ID, Title: "n"}))
	require.NoError(t, f.store.CreateBookmark(ctx, &models.Bookmark{DocumentID: doc.ID, Page: 1}))

	w := f.do(t, http.MethodDelete, "/documents/"+doc.ID, "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.NoFileExists(t, path)
	notes, err := f.store.ListNotes(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
	bookmarks, err := f.store.ListBookmarks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, bookmarks)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/settings", "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"alice","speed":1,"streak_count":0}`, w.Body.String())

	w = f.do(t, http.MethodPut, "/settings", "alice-token", gin.H{"speed": 1.5, "voice_id": "2", "page_goal": 20})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := f.store.GetSettings(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.Speed)
	require.NotNil(t, got.VoiceID)
	assert.Equal(t, "2", *got.VoiceID)
	require.NotNil(t, got.PageGoal)
	assert.Equal(t, 20, *got.PageGoal)

	w = f.do(t, http.MethodPut, "/settings", "alice-token", gin.H{"voice_id": "99"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPut, "/settings", "alice-token", gin.H{"speed": -2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/settings/streak", "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var streak auth.StreakResult
	decode(t, w, &streak)
	assert.Equal(t, 1, streak.StreakCount)
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/summarize", "alice-token", gin.H{"text": "long text"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f.h.Summarizer = stubSummarizer{}
	w = f.do(t, http.MethodPost, "/summarize", "alice-token", gin.H{"text": "long text"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"summary":"summary of long text"}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/generate-keywords", "alice-token", gin.H{"text": "long text"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"keywords":"kw1, kw2"}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/summarize", "alice-token", gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateFolder(ctx, &models.Folder{Name: "Physics", OwnerID: "alice"}))
	require.NoError(t, f.store.CreateFolder(ctx, &models.Folder{Name: "Physics", OwnerID: "bob"}))
	require.NoError(t, f.store.CreateDocument(ctx, &models.Document{Title: "physics notes", OwnerID: "alice", Length: 4}))
	require.NoError(t, f.store.CreateDocument(ctx, &models.Document{Title: "History", OwnerID: "alice"}))

	w := f.do(t, http.MethodGet, "/search?q=phys", "alice-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []SearchResultItem
	decode(t, w, &items)
	require.Len(t, items, 2)
	assert.Equal(t, "folder", items[0].Type)
	assert.Equal(t, "document", items[1].Type)
	assert.Equal(t, 4, items[1].Pages)

	w = f.do(t, http.MethodGet, "/search", "alice-token", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}
