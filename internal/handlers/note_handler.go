// ./astra-backend/internal/handlers/note_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"astra/backend/internal/apperr"
	"astra/backend/internal/models"
)

type CreateNotePayload struct {
	DocumentID string `json:"document_id" binding:"required"`
	Title      string `json:"title" binding:"required"`
	Content    string `json:"content"`
	Page       int    `json:"page" binding:"gte=0"`
}

func (h *Handler) CreateNote(c *gin.Context) {
	var payload CreateNotePayload
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

	doc, err := h.ownedDocument(ctx, payload.DocumentID, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if doc.Length > 0 && payload.Page > doc.Length {
		respondError(c, apperr.Invalid("page", fmt.Sprintf("document has %d pages", doc.Length)))
		return
	}

	now := h.now()
	note := models.Note{
		DocumentID: doc.ID,
		Title:      strings.TrimSpace(payload.Title),
		Content:    payload.Content,
		Page:       payload.Page,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.Store.CreateNote(ctx, &note); err != nil {
		respondError(c, fmt.Errorf("save note: %w", err))
		return
	}
	c.JSON(http.StatusCreated, note)
}

// GetDocumentNotes lists the notes attached to a document.
func (h *Handler) GetDocumentNotes(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	doc, err := h.ownedDocument(ctx, c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	notes, err := h.Store.ListNotes(ctx, doc.ID)
	if err != nil {
		respondError(c, fmt.Errorf("list notes: %w", err))
		return
	}
	if notes == nil {
		notes = make([]models.Note, 0)
	}
	c.JSON(http.StatusOK, notes)
}

// UpdateNotePayload holds the fields of a note that may change.
type UpdateNotePayload struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Page    *int    `json:"page"`
}

func (h *Handler) UpdateNote(c *gin.Context) {
	var payload UpdateNotePayload
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

	note, err := h.Store.GetNote(ctx, c.Param("id"))
	if err != nil {
		respondError(c, notFoundAs(err, "note"))
		return
	}
	doc, err := h.ownedDocument(ctx, note.DocumentID, uid)
	if err != nil {
		respondError(c, apperr.NotFound("note"))
		return
	}

	if payload.Title != nil {
		title := strings.TrimSpace(*payload.Title)
		if title == "" {
			respondError(c, apperr.Invalid("title", "must not be blank"))
			return
		}
		note.Title = title
	}
	if payload.Content != nil {
		note.Content = *payload.Content
	}
	if payload.Page != nil {
		if *payload.Page < 0 || (doc.Length > 0 && *payload.Page > doc.Length) {
			respondError(c, apperr.Invalid("page", "out of range"))
			return
		}
		note.Page = *payload.Page
	}
	note.UpdatedAt = h.now()

	if err := h.Store.UpdateNote(ctx, note); err != nil {
		respondError(c, notFoundAs(err, "note"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note updated successfully", "note": note})
}

func (h *Handler) DeleteNote(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	note, err := h.Store.GetNote(ctx, c.Param("id"))
	if err != nil {
		respondError(c, notFoundAs(err, "note"))
		return
	}
	if _, err := h.ownedDocument(ctx, note.DocumentID, uid); err != nil {
		respondError(c, apperr.NotFound("note"))
		return
	}
	if err := h.Store.DeleteNote(ctx, note.ID); err != nil {
		respondError(c, notFoundAs(err, "note"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note deleted successfully"})
}
