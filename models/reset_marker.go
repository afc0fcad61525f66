package models

import "time"

// DailyResetMarkerName is the single marker row used by the daily reset service
const DailyResetMarkerName = "instance_daily_reset"

// ResetMarker stores the last completed boundary for named periodic sweeps.
// LastBoundary holds the boundary date formatted YYYY-MM-DD in the configured
// reset zone, so replicas agree on "already done" regardless of host timezone.
type ResetMarker struct {
	Name         string    `gorm:"primaryKey;size:64" json:"name"`
	LastBoundary string    `gorm:"size:64;not null" json:"last_boundary"`
	CreatedAt    time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (ResetMarker) TableName() string { return "reset_markers" }
