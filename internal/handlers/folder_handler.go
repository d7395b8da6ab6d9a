// ./astra-backend/internal/handlers/folder_handler.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"astra/backend/internal/apperr"
	"astra/backend/internal/models"
)

// CreateFolderPayload defines the expected JSON for creating a folder
type CreateFolderPayload struct {
	Name     string `json:"name" binding:"required"`
	ParentID string `json:"parent_id"` // Can be empty for root folders
}

func (h *Handler) CreateFolder(c *gin.Context) {
	var payload CreateFolderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	uid, ok := userID(c)
	if !ok {
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		respondError(c, apperr.Invalid("name", "must not be blank"))
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	if payload.ParentID != "" {
		if _, err := h.ownedFolder(ctx, payload.ParentID, uid); err != nil {
			respondError(c, err)
			return
		}
	}

	now := h.now()
	folder := models.Folder{
		Name:      name,
		ParentID:  payload.ParentID,
		OwnerID:   uid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.CreateFolder(ctx, &folder); err != nil {
		respondError(c, fmt.Errorf("create folder: %w", err))
		return
	}
	c.JSON(http.StatusCreated, folder)
}

// GetFolders lists the caller's folders under ?parent_id, or the root
// folders when it is empty or "root".
func (h *Handler) GetFolders(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	parentID := c.Query("parent_id")
	if parentID == "root" {
		parentID = ""
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	folders, err := h.Store.ListFolders(ctx, uid, parentID)
	if err != nil {
		respondError(c, fmt.Errorf("list folders: %w", err))
		return
	}
	if folders == nil {
		folders = make([]models.Folder, 0)
	}
	c.JSON(http.StatusOK, folders)
}

func (h *Handler) GetFolder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	folder, err := h.ownedFolder(ctx, c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, folder)
}

// UpdateFolderPayload defines the expected JSON for renaming a folder
type UpdateFolderPayload struct {
	Name string `json:"name" binding:"required"`
}

// UpdateFolder renames a folder.
func (h *Handler) UpdateFolder(c *gin.Context) {
	var payload UpdateFolderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}
	uid, ok := userID(c)
	if !ok {
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		respondError(c, apperr.Invalid("name", "must not be blank"))
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Store.RenameFolder(ctx, c.Param("id"), uid, name); err != nil {
		respondError(c, notFoundAs(err, "folder"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Folder updated successfully"})
}

// DeleteFolder deletes a folder and its subfolders. Documents filed in them
// move back to the library root.
func (h *Handler) DeleteFolder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	folder, err := h.ownedFolder(ctx, c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.deleteFolderRecursively(ctx, folder.ID, uid); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("folder_id", folder.ID).Msg("error during recursive delete")
		respondError(c, fmt.Errorf("failed to delete folder and its contents: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Folder deleted successfully"})
}

func (h *Handler) deleteFolderRecursively(ctx context.Context, folderID, ownerID string) error {
	subfolders, err := h.Store.ListFolders(ctx, ownerID, folderID)
	if err != nil {
		return err
	}
	for _, sub := range subfolders {
		if err := h.deleteFolderRecursively(ctx, sub.ID, ownerID); err != nil {
			return err
		}
	}
	if err := h.Store.DetachFolder(ctx, ownerID, folderID); err != nil {
		return fmt.Errorf("detach documents from folder %s: %w", folderID, err)
	}
	return h.Store.DeleteFolder(ctx, folderID, ownerID)
}

func (h *Handler) GetFolderDocuments(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	folder, err := h.ownedFolder(ctx, c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	docs, err := h.Store.ListDocumentsInFolder(ctx, uid, folder.ID)
	if err != nil {
		respondError(c, fmt.Errorf("list documents: %w", err))
		return
	}
	if docs == nil {
		docs = make([]models.Document, 0)
	}
	c.JSON(http.StatusOK, docs)
}
