// ./astra-backend/internal/handlers/handler.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"astra/backend/internal/apperr"
	"astra/backend/internal/audiobook"
	"astra/backend/internal/database"
	"astra/backend/internal/middleware"
	"astra/backend/internal/models"
)

// PageCounter reports how many pages a PDF has.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// TextRecognizer reads the text out of a scanned image.
type TextRecognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	Keywords(ctx context.Context, text string) (string, error)
}

// Handler serves every authenticated route. Summarizer may be nil, in which
// case the summarization routes answer 503.
type Handler struct {
	Store      database.Store
	Audiobooks *audiobook.Service
	Pages      PageCounter
	OCR        TextRecognizer
	RenderPDF  func(title, text, outPath string) error
	Summarizer Summarizer
	UploadDir  string
	BaseURL    string
	Timeout    time.Duration
	Now        func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// ctx bounds the datastore work of one request.
func (h *Handler) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), d)
}

// userID returns the caller's UID, answering 401 when there is none.
func userID(c *gin.Context) (string, bool) {
	uid := middleware.UserID(c.Request.Context())
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return uid, true
}

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload: " + err.Error()})
}

// ownedDocument loads a document the caller owns. Documents of other users
// are reported as missing.
func (h *Handler) ownedDocument(ctx context.Context, id, uid string) (*models.Document, error) {
	doc, err := h.Store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("document")
		}
		return nil, err
	}
	if doc.OwnerID != uid {
		return nil, apperr.NotFound("document")
	}
	return doc, nil
}

func (h *Handler) ownedFolder(ctx context.Context, id, uid string) (*models.Folder, error) {
	f, err := h.Store.GetFolder(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("folder")
		}
		return nil, err
	}
	if f.OwnerID != uid {
		return nil, apperr.NotFound("folder")
	}
	return f, nil
}

// mediaURL is the public URL of a file served from a static media route.
func (h *Handler) mediaURL(route, name string) string {
	return strings.TrimRight(h.BaseURL, "/") + route + "/" + name
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// notFoundAs names the missing resource in a store's not-found error.
func notFoundAs(err error, resource string) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound(resource)
	}
	return err
}
