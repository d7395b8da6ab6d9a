package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"astra/backend/internal/apperr"
	"astra/backend/internal/audiobook"
	"astra/backend/internal/models"
)

const AudiobooksRoute = "/media/audiobooks"

// GenerateAudiobookPayload names the voice to render with. UserID, when
// sent, must be the caller.
type GenerateAudiobookPayload struct {
	VoiceID string `json:"voice_id" binding:"required"`
	UserID  string `json:"user_id"`
}

// GenerateAudiobook starts rendering a document, or returns the audiobook
// already recorded for the document, voice and caller.
func (h *Handler) GenerateAudiobook(c *gin.Context) {
	var payload GenerateAudiobookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	uid, ok := userID(c)
	if !ok {
		return
	}
	if payload.UserID != "" && payload.UserID != uid {
		respondError(c, apperr.Forbidden("cannot generate audiobooks for another user"))
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Audiobooks.Generate(ctx, audiobook.GenerateRequest{
		DocumentID: c.Param("document_id"),
		VoiceID:    payload.VoiceID,
		UserID:     uid,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	msg := "Audiobook generation started"
	if res.Existing {
		msg = "Audiobook already exists"
	}
	book := res.Audiobook
	c.JSON(http.StatusOK, gin.H{
		"message":      msg,
		"audiobook_id": book.ID,
		"file_path":    book.FilePath,
		"file_url":     h.mediaURL(AudiobooksRoute, filepath.Base(book.FilePath)),
		"status":       book.Status,
	})
}

func (h *Handler) ListVoices(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()
	voices, err := h.Store.ListVoices(ctx)
	if err != nil {
		respondError(c, fmt.Errorf("list voices: %w", err))
		return
	}
	if voices == nil {
		voices = make([]models.Voice, 0)
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices})
}

type catalogItem struct {
	audiobook.CatalogEntry
	FileURL string `json:"file_url"`
}

// UserAudiobooks lists the caller's audiobooks, one per document and voice.
func (h *Handler) UserAudiobooks(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	if c.Param("user_id") != uid {
		respondError(c, apperr.Forbidden("cannot list another user's audiobooks"))
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	entries, err := h.Audiobooks.Catalog(ctx, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]catalogItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, catalogItem{CatalogEntry: e, FileURL: h.mediaURL(AudiobooksRoute, filepath.Base(e.FilePath))})
	}
	c.JSON(http.StatusOK, gin.H{"audiobooks": items})
}

func (h *Handler) AudiobookStatus(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	id := c.Param("audiobook_id")
	row, err := h.Store.GetAudiobook(ctx, id)
	if err != nil {
		respondError(c, notFoundAs(err, "audiobook"))
		return
	}
	if row.UserID != uid {
		respondError(c, apperr.NotFound("audiobook"))
		return
	}

	report, err := h.Audiobooks.Status(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) DeleteAudiobook(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Audiobooks.Delete(ctx, c.Param("audiobook_id"), uid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Audiobook deleted successfully"})
}
