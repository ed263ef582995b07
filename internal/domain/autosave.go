package domain

import "time"

// Change types reported by the editor client.
const (
	ChangeTypeTyping         = "typing"
	ChangeTypePaste          = "paste"
	ChangeTypeDelete         = "delete"
	ChangeTypeTemplateSwitch = "template-switch"
	ChangeTypeManual         = "manual"
)

// AutosaveRecord is one accepted-or-rejected save attempt. Records are
// append-only; they are kept for performance analysis and integrity audit
// and reference documents by id only.
type AutosaveRecord struct {
	ID               string            `gorm:"primaryKey" json:"id"`
	DocumentGUID     string            `gorm:"index" json:"document_guid"`
	SessionID        string            `json:"session_id"`
	ChangeType       string            `json:"change_type"`
	ChangeCount      int               `json:"change_count"`
	ContentHash      string            `json:"content_hash"`
	CompressionRatio float64           `json:"compression_ratio"`
	ResponseTime     int64             `json:"response_time"` // milliseconds
	ResultingVersion int64             `json:"resulting_version"`
	Success          bool              `json:"success"`
	Metadata         map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ValidChangeType reports whether t is one of the known change types.
func ValidChangeType(t string) bool {
	switch t {
	case ChangeTypeTyping, ChangeTypePaste, ChangeTypeDelete, ChangeTypeTemplateSwitch, ChangeTypeManual:
		return true
	}
	return false
}
