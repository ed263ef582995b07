package sync

import (
	"encoding/json"
	"net/http"
	"time"

	"autosave-sync-engine/internal/document"
	"autosave-sync-engine/internal/domain"
	"autosave-sync-engine/internal/errors"
	"autosave-sync-engine/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type SyncBody struct {
	DocumentID string          `json:"document_id" binding:"required"`
	Content    json.RawMessage `json:"content" binding:"required"`
	Version    int64           `json:"version" binding:"min=0"`
	UserID     string          `json:"user_id"`
}

// ConflictDTO is the wire shape for a conflict, with the detection-time
// snapshots nested the way the editor expects them.
type ConflictDTO struct {
	ID            string                 `json:"id"`
	DocumentID    string                 `json:"document_id"`
	Type          string                 `json:"type"`
	LocalVersion  domain.VersionSnapshot `json:"local_version"`
	ServerVersion domain.VersionSnapshot `json:"server_version"`
	Timestamp     time.Time              `json:"timestamp"`
	Resolved      bool                   `json:"resolved"`
	Resolution    string                 `json:"resolution,omitempty"`
	ResolvedAt    *time.Time             `json:"resolved_at,omitempty"`
}

func toConflictDTO(item domain.ConflictItem) ConflictDTO {
	return ConflictDTO{
		ID:            item.ID,
		DocumentID:    item.DocumentID,
		Type:          item.Type,
		LocalVersion:  item.Local(),
		ServerVersion: item.Server(),
		Timestamp:     item.Timestamp,
		Resolved:      item.Resolved,
		Resolution:    item.Resolution,
		ResolvedAt:    item.ResolvedAt,
	}
}

func toConflictDTOs(items []domain.ConflictItem) []ConflictDTO {
	dtos := make([]ConflictDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, toConflictDTO(item))
	}
	return dtos
}

func (h *Handler) Sync(c *gin.Context) {
	var body SyncBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	// the authenticated identity always wins over the body field
	if userID, ok := c.Get("user_id"); ok {
		body.UserID = userID.(string)
	}
	if body.UserID == "" {
		c.Error(errors.BadRequest("user_id is required", nil))
		return
	}

	result, err := h.service.Sync(c.Request.Context(), &SyncRequest{
		DocumentID: body.DocumentID,
		Content:    body.Content,
		Version:    body.Version,
		UserID:     body.UserID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	if result.Outcome == document.OutcomeConflict {
		// a stale base version is a normal outcome, surfaced as data
		c.JSON(http.StatusConflict, gin.H{
			"success":   false,
			"conflicts": []ConflictDTO{toConflictDTO(*result.Conflict)},
			"version":   result.Conflict.ServerVersion,
			"message":   "Version conflict detected",
		})
		return
	}

	status := http.StatusOK
	message := "Document synced"
	if result.Outcome == document.OutcomeCreated {
		status = http.StatusCreated
		message = "Document created"
	}

	c.JSON(status, gin.H{
		"success": true,
		"data":    result.State,
		"version": result.State.Version,
		"message": message,
	})
}

func (h *Handler) ConflictCheck(c *gin.Context) {
	documentID := c.Query("document_id")
	if documentID == "" {
		c.Error(errors.BadRequest("document_id is required", nil))
		return
	}

	items, err := h.service.ConflictCheck(c.Request.Context(), documentID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"conflicts": toConflictDTOs(items),
	})
}

type ResolveBody struct {
	ConflictID string `json:"conflict_id" binding:"required"`
	Resolution string `json:"resolution" binding:"required,oneof=local server merge"`
	DocumentID string `json:"document_id"`
}

func (h *Handler) ResolveConflict(c *gin.Context) {
	var body ResolveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	snapshot, err := h.service.ResolveConflict(c.Request.Context(), body.ConflictID, body.Resolution)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"content": snapshot.Content,
			"version": snapshot.Version,
		},
		"message": "Conflict resolved with " + body.Resolution + " strategy",
	})
}

func (h *Handler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Query("document_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) ConflictHistory(c *gin.Context) {
	page, pageSize := utils.GetPaginationParams(c)

	items, meta, err := h.service.ConflictHistory(c.Request.Context(), c.Query("document_id"), page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": toConflictDTOs(items),
		"meta": meta,
	})
}
