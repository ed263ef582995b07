package autosave

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"autosave-sync-engine/internal/errors"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type EnhancedAutosaveBody struct {
	SessionID    string            `json:"session_id" binding:"required"`
	Content      json.RawMessage   `json:"content" binding:"required"`
	ContentHash  string            `json:"content_hash" binding:"required"`
	ChangeType   string            `json:"change_type" binding:"required,oneof=typing paste delete template-switch manual"`
	ChangeCount  int               `json:"change_count" binding:"min=0"`
	IsCompressed bool              `json:"is_compressed"`
	Metadata     map[string]string `json:"metadata"`
}

// EnhancedAutosave accepts one save attempt. Compressed payloads arrive
// base64-encoded inside the JSON content field; raw payloads are inline
// JSON. Key response fields are mirrored into headers so the client can
// poll cheaply without parsing the body.
func (h *Handler) EnhancedAutosave(c *gin.Context) {
	guid := c.Param("guid")
	if guid == "" {
		c.Error(errors.BadRequest("Document guid is required", nil))
		return
	}

	var body EnhancedAutosaveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	payload := []byte(body.Content)
	if body.IsCompressed {
		var encoded string
		if err := json.Unmarshal(body.Content, &encoded); err != nil {
			c.Error(errors.Payload("Compressed content must be a base64 string", err))
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			c.Error(errors.Payload("Can't decode compressed content", err))
			return
		}
		payload = decoded
	}

	var userID string
	if id, ok := c.Get("user_id"); ok {
		userID = id.(string)
	}

	resp, err := h.service.EnhancedSave(c.Request.Context(), &SaveRequest{
		GUID:         guid,
		SessionID:    body.SessionID,
		Payload:      payload,
		ContentHash:  body.ContentHash,
		ChangeType:   body.ChangeType,
		ChangeCount:  body.ChangeCount,
		IsCompressed: body.IsCompressed,
		Metadata:     body.Metadata,
		UserID:       userID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.Header("X-Response-Time", strconv.FormatInt(resp.ResponseTime.Milliseconds(), 10))
	c.Header("X-Save-Count", strconv.FormatInt(resp.SaveCount, 10))
	c.Header("X-Version", strconv.FormatInt(resp.Version, 10))
	c.Header("X-Compression-Ratio", strconv.FormatFloat(resp.CompressionRatio, 'f', 2, 64))
	c.Header("X-Conflict-Status", resp.ConflictStatus)

	status := http.StatusOK
	result := gin.H{
		"success":           resp.Success,
		"guid":              resp.GUID,
		"session_id":        resp.SessionID,
		"version":           resp.Version,
		"save_count":        resp.SaveCount,
		"next_save_in":      resp.NextSaveIn.Milliseconds(),
		"compression_ratio": resp.CompressionRatio,
		"response_time":     resp.ResponseTime.Milliseconds(),
		"conflict_status":   resp.ConflictStatus,
	}

	if resp.Success {
		result["saved_at"] = resp.SavedAt
	} else {
		status = http.StatusConflict
		result["error"] = "Version conflict, run a full sync before saving again"
	}

	c.JSON(status, result)
}
