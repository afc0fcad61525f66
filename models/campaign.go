package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simurgh-io/simurgh/utils"
)

// CampaignStatus represents the status of an outreach run
type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusPending, CampaignStatusRunning,
		CampaignStatusCompleted, CampaignStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the campaign can no longer change status
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// AssignmentStrategy describes how dispatch jobs of a campaign are bound to instances
type AssignmentStrategy string

const (
	// AssignmentPerJob resolves a fresh instance per contact at enqueue time
	AssignmentPerJob AssignmentStrategy = "per-job"
	// AssignmentDeferred enqueues raw jobs; the worker resolves the instance
	AssignmentDeferred AssignmentStrategy = "deferred"
)

// Valid checks if the strategy is valid
func (a AssignmentStrategy) Valid() bool {
	return a == AssignmentPerJob || a == AssignmentDeferred
}

// Campaign represents one outreach run over a set of contacts
// Table: campaigns
type Campaign struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	CustomerID uint      `gorm:"not null;index:idx_campaigns_customer_id" json:"customer_id"`

	Status   CampaignStatus     `gorm:"type:campaign_status;not null;default:'pending';index:idx_campaigns_status" json:"status"`
	Strategy AssignmentStrategy `gorm:"size:32;not null;default:'per-job'" json:"strategy"`

	TotalContacts     int64 `gorm:"not null;default:0" json:"total_contacts"`
	ProcessedContacts int64 `gorm:"not null;default:0" json:"processed_contacts"`
	FailedContacts    int64 `gorm:"not null;default:0" json:"failed_contacts"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt *time.Time `gorm:"index:idx_campaigns_updated_at" json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusPending
	}
	if c.Strategy == "" {
		c.Strategy = AssignmentPerJob
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the campaign can transition to the given status
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch c.Status {
	case CampaignStatusPending:
		return newStatus == CampaignStatusRunning || newStatus == CampaignStatusFailed
	case CampaignStatusRunning:
		return newStatus == CampaignStatusCompleted || newStatus == CampaignStatusFailed
	default:
		return false
	}
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	CustomerID    *uint
	Status        *CampaignStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
