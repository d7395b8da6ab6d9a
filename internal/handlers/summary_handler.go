package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type TextRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) Summarize(c *gin.Context) {
	h.complete(c, "summary", func(ctx context.Context, s Summarizer, text string) (string, error) {
		return s.Summarize(ctx, text)
	})
}

func (h *Handler) GenerateKeywords(c *gin.Context) {
	h.complete(c, "keywords", func(ctx context.Context, s Summarizer, text string) (string, error) {
		return s.Keywords(ctx, text)
	})
}

func (h *Handler) complete(c *gin.Context, field string, call func(context.Context, Summarizer, string) (string, error)) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be blank"})
		return
	}
	if h.Summarizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Summarization is not configured"})
		return
	}

	out, err := call(c.Request.Context(), h.Summarizer, req.Text)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("kind", field).Msg("summarization failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{field: out})
}
