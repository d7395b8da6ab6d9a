package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"astra/backend/internal/auth"
	"astra/backend/internal/middleware"
)

// RouteOptions carries the per-route limits applied by Register.
type RouteOptions struct {
	AudiobookDir   string
	MaxUploadBytes int64
	GenerateEvery  time.Duration
	GenerateBurst  int
}

// Register mounts the public, static and authenticated routes on router.
func Register(router *gin.Engine, h *Handler, session *auth.SessionHandler, verifier middleware.TokenVerifier, opts RouteOptions) {
	router.GET("/health", h.Health)

	router.Static(AudiobooksRoute, opts.AudiobookDir)
	router.Static(UploadsRoute, h.UploadDir)

	protected := router.Group("/")
	protected.Use(middleware.AuthMiddleware(verifier))
	{
		protected.POST("/session", session.Login)

		// AUDIOBOOK ROUTES
		protected.POST("/audiobooks/generate/:document_id",
			middleware.RateLimit(opts.GenerateEvery, opts.GenerateBurst), h.GenerateAudiobook)
		protected.GET("/audiobooks/voices", h.ListVoices)
		protected.GET("/audiobooks/user/:user_id", h.UserAudiobooks)
		protected.GET("/audiobooks/status/:audiobook_id", h.AudiobookStatus)
		protected.DELETE("/audiobooks/:audiobook_id", h.DeleteAudiobook)

		// FOLDER ROUTES
		protected.POST("/folders", h.CreateFolder)
		protected.GET("/folders", h.GetFolders)
		protected.GET("/folders/:id", h.GetFolder)
		protected.PUT("/folders/:id", h.UpdateFolder)
		protected.DELETE("/folders/:id", h.DeleteFolder)
		protected.GET("/folders/:id/documents", h.GetFolderDocuments)

		// DOCUMENT ROUTES
		protected.POST("/documents/upload", middleware.MaxBodySize(opts.MaxUploadBytes), h.UploadDocument)
		protected.GET("/documents", h.ListDocuments)
		protected.GET("/documents/:id", h.GetDocument)
		protected.PUT("/documents/:id/move", h.MoveDocument)
		protected.PUT("/documents/:id/progress", h.UpdateProgress)
		protected.DELETE("/documents/:id", h.DeleteDocument)
		protected.GET("/documents/:id/notes", h.GetDocumentNotes)
		protected.GET("/documents/:id/bookmarks", h.GetDocumentBookmarks)

		// NOTE ROUTES
		protected.POST("/notes", h.CreateNote)
		protected.PUT("/notes/:id", h.UpdateNote)
		protected.DELETE("/notes/:id", h.DeleteNote)

		// BOOKMARK ROUTES
		protected.POST("/bookmarks", h.CreateBookmark)
		protected.DELETE("/bookmarks/:id", h.DeleteBookmark)

		// SETTINGS ROUTES
		protected.GET("/settings", h.GetSettings)
		protected.PUT("/settings", h.UpdateSettings)
		protected.POST("/settings/streak", h.UpdateStreak)

		protected.POST("/summarize", h.Summarize)
		protected.POST("/generate-keywords", h.GenerateKeywords)

		// SEARCH ROUTE
		protected.GET("/search", h.SearchItems)
	}
}
