package model

import "time"

const (
	StateKeyLastScanAt     = "last_scan_at"
	StateKeyLastUniverseAt = "last_universe_refresh_at"
	RuntimeStateTimeLayout = time.RFC3339Nano
)

// RuntimeState is a small key-value store of process continuity markers.
// last_scan_at is the high-water mark bounding downtime reconciliation.
type RuntimeState struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RuntimeState) TableName() string {
	return "runtime_state"
}
