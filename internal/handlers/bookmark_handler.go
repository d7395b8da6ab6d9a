package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"astra/backend/internal/apperr"
	"astra/backend/internal/models"
)

type CreateBookmarkPayload struct {
	DocumentID  string `json:"document_id" binding:"required"`
	Page        int    `json:"page" binding:"gte=0"`
	Description string `json:"description"`
}

func (h *Handler) CreateBookmark(c *gin.Context) {
	var payload CreateBookmarkPayload
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

	bm := models.Bookmark{
		DocumentID:  doc.ID,
		Page:        payload.Page,
		Description: payload.Description,
		CreatedAt:   h.now(),
	}
	if err := h.Store.CreateBookmark(ctx, &bm); err != nil {
		respondError(c, fmt.Errorf("save bookmark: %w", err))
		return
	}
	c.JSON(http.StatusCreated, bm)
}

func (h *Handler) GetDocumentBookmarks(c *gin.Context) {
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
	bookmarks, err := h.Store.ListBookmarks(ctx, doc.ID)
	if err != nil {
		respondError(c, fmt.Errorf("list bookmarks: %w", err))
		return
	}
	if bookmarks == nil {
		bookmarks = make([]models.Bookmark, 0)
	}
	c.JSON(http.StatusOK, bookmarks)
}

func (h *Handler) DeleteBookmark(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	bm, err := h.Store.GetBookmark(ctx, c.Param("id"))
	if err != nil {
		respondError(c, notFoundAs(err, "bookmark"))
		return
	}
	if _, err := h.ownedDocument(ctx, bm.DocumentID, uid); err != nil {
		respondError(c, apperr.NotFound("bookmark"))
		return
	}
	if err := h.Store.DeleteBookmark(ctx, bm.ID); err != nil {
		respondError(c, notFoundAs(err, "bookmark"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bookmark deleted successfully"})
}
