package domain

import (
	"encoding/json"
	"time"
)

// Conflict types. The engine only manufactures version conflicts; content
// and permission are reserved classification slots for collaborator layers.
const (
	ConflictTypeContent    = "content"
	ConflictTypeVersion    = "version"
	ConflictTypePermission = "permission"
)

// Resolution strategies accepted by the resolver.
const (
	ResolutionLocal  = "local"
	ResolutionServer = "server"
	ResolutionMerge  = "merge"
)

// ConflictItem records a detected disagreement between a client's base
// version and the store's current version. Once resolved it is historical
// and must not be mutated again; items are never deleted.
type ConflictItem struct {
	ID            string          `gorm:"primaryKey" json:"id"`
	DocumentID    string          `gorm:"index" json:"document_id"`
	Type          string          `json:"type"`
	LocalContent  json.RawMessage `gorm:"type:jsonb" json:"-"`
	LocalVersion  int64           `json:"-"`
	ServerContent json.RawMessage `gorm:"type:jsonb" json:"-"`
	ServerVersion int64           `json:"-"`
	Timestamp     time.Time       `json:"timestamp"`
	Resolved      bool            `json:"resolved"`
	Resolution    string          `json:"resolution,omitempty"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

// Local returns the client-side snapshot captured at detection time.
func (c *ConflictItem) Local() VersionSnapshot {
	return VersionSnapshot{Content: c.LocalContent, Version: c.LocalVersion}
}

// Server returns the store-side snapshot captured at detection time.
func (c *ConflictItem) Server() VersionSnapshot {
	return VersionSnapshot{Content: c.ServerContent, Version: c.ServerVersion}
}
