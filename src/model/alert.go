package model

import "time"

const (
	AlertKindEntry       = "entry"
	AlertKindExit        = "exit"
	AlertKindReplacement = "replacement"
	AlertKindScanSkipped = "scan_skipped"
)

// Alert is the audit log of every outbound notification. MessageID is the
// downstream message identifier when delivery succeeded, nil otherwise.
// Rows are never mutated.
type Alert struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Kind       string    `gorm:"size:20;not null;index" json:"kind"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	PositionID *uint     `gorm:"index" json:"position_id,omitempty"`
	MessageID  *int64    `json:"message_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Alert) TableName() string {
	return "alerts"
}
