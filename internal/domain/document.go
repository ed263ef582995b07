package domain

import (
	"encoding/json"
	"time"
)

// DocumentState is the authoritative record for one editable document.
// Content is an opaque JSON payload; the engine only hashes and merges it
// at the top level, never interprets its structure.
type DocumentState struct {
	ID           string          `gorm:"primaryKey" json:"id"`
	Content      json.RawMessage `gorm:"type:jsonb" json:"content"`
	Version      int64           `json:"version"`
	LastModified time.Time       `json:"last_modified"`
	ModifiedBy   string          `json:"modified_by"`
	ActiveUsers  []string        `gorm:"serializer:json" json:"active_users"`
}

// VersionSnapshot captures content and version at a point in time.
type VersionSnapshot struct {
	Content json.RawMessage `json:"content"`
	Version int64           `json:"version"`
}

// HasActiveUser reports whether userID already wrote to the document.
func (d *DocumentState) HasActiveUser(userID string) bool {
	for _, u := range d.ActiveUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current content and version. The content
// bytes are copied so later writes can't mutate a recorded snapshot.
func (d *DocumentState) Snapshot() VersionSnapshot {
	content := make(json.RawMessage, len(d.Content))
	copy(content, d.Content)
	return VersionSnapshot{Content: content, Version: d.Version}
}
