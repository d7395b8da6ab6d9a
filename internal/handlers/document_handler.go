// ./astra-backend/internal/handlers/document_handler.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"astra/backend/internal/apperr"
	"astra/backend/internal/models"
)

const UploadsRoute = "/media/uploads"

var uploadExtensions = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

type documentResponse struct {
	models.Document
	FileURL string `json:"file_url"`
}

func (h *Handler) documentResponse(d models.Document) documentResponse {
	return documentResponse{Document: d, FileURL: h.mediaURL(UploadsRoute, filepath.Base(d.FilePath))}
}

// UploadDocument stores a PDF, or OCRs a scanned PNG/JPEG into a PDF, and
// records its page count.
func (h *Handler) UploadDocument(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
			return
		}
		respondError(c, apperr.Invalid("file", "a file is required"))
		return
	}
	log := zerolog.Ctx(c.Request.Context())

	f, err := header.Open()
	if err != nil {
		respondError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	mtype, err := mimetype.DetectReader(f)
	f.Close()
	if err != nil {
		respondError(c, fmt.Errorf("detect file type: %w", err))
		return
	}
	ext, allowed := uploadExtensions[mtype.String()]
	if !allowed {
		respondError(c, apperr.Invalid("file", fmt.Sprintf("unsupported file type %s; only PDF, PNG, JPG and JPEG are allowed", mtype.String())))
		return
	}

	folderID := c.PostForm("folder_id")
	if folderID != "" {
		ctx, cancel := h.ctx(c)
		_, err := h.ownedFolder(ctx, folderID, uid)
		cancel()
		if err != nil {
			respondError(c, err)
			return
		}
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		respondError(c, fmt.Errorf("ensure upload directory: %w", err))
		return
	}
	base := uuid.NewString()
	stored := filepath.Join(h.UploadDir, base+ext)
	if err := c.SaveUploadedFile(header, stored); err != nil {
		respondError(c, fmt.Errorf("save upload: %w", err))
		return
	}

	// Extractors bound themselves with the extract timeout.
	extractCtx := c.Request.Context()
	pdfPath := stored
	scanned := ext != ".pdf"
	if scanned {
		text, err := h.OCR.Recognize(extractCtx, stored)
		_ = os.Remove(stored)
		if err != nil {
			respondError(c, fmt.Errorf("OCR failed: %w", err))
			return
		}
		pdfPath = filepath.Join(h.UploadDir, base+".pdf")
		if err := h.RenderPDF(title, text, pdfPath); err != nil {
			respondError(c, fmt.Errorf("render scanned document: %w", err))
			return
		}
	}

	pages, err := h.Pages.PageCount(extractCtx, pdfPath)
	if err != nil {
		_ = os.Remove(pdfPath)
		log.Warn().Err(err).Str("file", header.Filename).Msg("unreadable upload")
		respondError(c, apperr.Invalid("file", "could not read PDF: "+err.Error()))
		return
	}

	doc := models.Document{
		Title:     title,
		OwnerID:   uid,
		FolderID:  folderID,
		FilePath:  pdfPath,
		IsScanned: scanned,
		Length:    pages,
		CreatedAt: h.now(),
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Store.CreateDocument(ctx, &doc); err != nil {
		_ = os.Remove(pdfPath)
		respondError(c, fmt.Errorf("save document: %w", err))
		return
	}
	log.Info().Str("document_id", doc.ID).Int("pages", pages).Bool("scanned", scanned).Msg("document uploaded")
	c.JSON(http.StatusCreated, h.documentResponse(doc))
}

func (h *Handler) ListDocuments(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	docs, err := h.Store.ListDocuments(ctx, uid)
	if err != nil {
		respondError(c, fmt.Errorf("list documents: %w", err))
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, h.documentResponse(d))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetDocument(c *gin.Context) {
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
	c.JSON(http.StatusOK, h.documentResponse(*doc))
}

type MoveDocumentPayload struct {
	FolderID string `json:"folder_id"` // empty moves to the root
}

func (h *Handler) MoveDocument(c *gin.Context) {
	var payload MoveDocumentPayload
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

	doc, err := h.ownedDocument(ctx, c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if payload.FolderID != "" {
		if _, err := h.ownedFolder(ctx, payload.FolderID, uid); err != nil {
			respondError(c, err)
			return
		}
	}
	if err := h.Store.MoveDocument(ctx, doc.ID, payload.FolderID); err != nil {
		respondError(c, notFoundAs(err, "document"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document moved successfully"})
}

type ProgressPayload struct {
	Progress *int `json:"progress" binding:"required"`
}

// UpdateProgress records the last page read, clamped to the document length.
func (h *Handler) UpdateProgress(c *gin.Context) {
	var payload ProgressPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	uid, ok := userID(c)
	if !ok {
		return
	}
	if *payload.Progress < 0 {
		respondError(c, apperr.Invalid("progress", "must not be negative"))
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	doc, err := h.ownedDocument(ctx, c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	progress := *payload.Progress
	if doc.Length > 0 && progress > doc.Length {
		progress = doc.Length
	}
	if err := h.Store.UpdateDocumentProgress(ctx, doc.ID, progress); err != nil {
		respondError(c, notFoundAs(err, "document"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Progress updated successfully", "progress": progress})
}

// DeleteDocument removes the document with its file, notes, bookmarks and
// audiobooks.
func (h *Handler) DeleteDocument(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	log := zerolog.Ctx(ctx)

	doc, err := h.ownedDocument(ctx, c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.Audiobooks.DeleteForDocument(ctx, doc.ID); err != nil {
		respondError(c, fmt.Errorf("delete audiobooks: %w", err))
		return
	}
	if err := h.Store.DeleteNotesForDocument(ctx, doc.ID); err != nil {
		respondError(c, fmt.Errorf("delete notes: %w", err))
		return
	}
	if err := h.Store.DeleteBookmarksForDocument(ctx, doc.ID); err != nil {
		respondError(c, fmt.Errorf("delete bookmarks: %w", err))
		return
	}
	if err := h.Store.DeleteDocument(ctx, doc.ID); err != nil {
		respondError(c, notFoundAs(err, "document"))
		return
	}
	if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", doc.FilePath).Msg("could not remove document file")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}
