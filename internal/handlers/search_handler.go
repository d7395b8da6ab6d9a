// ./astra-backend/internal/handlers/search_handler.go
package handlers

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// SearchResultItem defines a generic structure for search results.
type SearchResultItem struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"` // For folders
	FolderID  string    `json:"folder_id,omitempty"` // For documents
	Pages     int       `json:"pages,omitempty"`    // For documents
	CreatedAt time.Time `json:"created_at"`
}

// SearchItems searches the caller's folders and documents by name.
func (h *Handler) SearchItems(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusOK, []SearchResultItem{})
		return
	}
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make([]SearchResultItem, 0)
	)
	g, gctx := errgroup.WithContext(ctx)

	// Search folders
	g.Go(func() error {
		folders, err := h.Store.SearchFolders(gctx, uid, query)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, f := range folders {
			results = append(results, SearchResultItem{
				Type:      "folder",
				ID:        f.ID,
				Name:      f.Name,
				ParentID:  f.ParentID,
				CreatedAt: f.CreatedAt,
			})
		}
		return nil
	})

	// Search documents
	g.Go(func() error {
		docs, err := h.Store.SearchDocuments(gctx, uid, query)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, d := range docs {
			results = append(results, SearchResultItem{
				Type:      "document",
				ID:        d.ID,
				Name:      d.Title,
				FolderID:  d.FolderID,
				Pages:     d.Length,
				CreatedAt: d.CreatedAt,
			})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Type != results[j].Type {
			return results[i].Type == "folder"
		}
		return strings.ToLower(results[i].Name) < strings.ToLower(results[j].Name)
	})
	c.JSON(http.StatusOK, results)
}
