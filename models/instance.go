package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simurgh-io/simurgh/utils"
)

// InstanceStatus represents the health status of a sending instance
type InstanceStatus string

const (
	InstanceStatusOK          InstanceStatus = "ok"
	InstanceStatusDegraded    InstanceStatus = "degraded"
	InstanceStatusUnreachable InstanceStatus = "unreachable"
)

// String returns the string representation of the status
func (s InstanceStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s InstanceStatus) Valid() bool {
	switch s {
	case InstanceStatusOK, InstanceStatusDegraded, InstanceStatusUnreachable:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for InstanceStatus
func (s *InstanceStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = InstanceStatus(v)
	case []byte:
		*s = InstanceStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into InstanceStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for InstanceStatus
func (s InstanceStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid InstanceStatus: %s", s)
	}
	return string(s), nil
}

// Instance represents one provisioned sending identity bound to a gateway provider
// Counters are mutated only through conditional updates in the repository;
// reading code must never write them back (quota admission races otherwise)
// Table: instances
type Instance struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_instances_uuid" json:"uuid"`
	ProviderID uint      `gorm:"not null;index:idx_instances_provider_id" json:"provider_id"`

	Name        string  `gorm:"size:255;not null;uniqueIndex:uk_instances_name" json:"name"`
	PhoneNumber *string `gorm:"size:20" json:"phone_number,omitempty"`

	// ExternalRef is the provider-side identifier assigned at provisioning
	ExternalRef *string `gorm:"size:255" json:"external_ref,omitempty"`

	Status   InstanceStatus `gorm:"type:instance_status;not null;default:'ok';index:idx_instances_status" json:"status"`
	IsActive *bool          `gorm:"default:true;index:idx_instances_is_active" json:"is_active"`

	// DailyLimit is nil for unlimited instances
	DailyLimit          *int64 `gorm:"" json:"daily_limit,omitempty"`
	SentToday           int64  `gorm:"not null;default:0" json:"sent_today"`
	ErrorToday          int64  `gorm:"not null;default:0" json:"error_today"`
	RateLimitCountToday int64  `gorm:"not null;default:0" json:"rate_limit_count_today"`

	LastUsedAt    *time.Time `gorm:"index:idx_instances_last_used_at" json:"last_used_at,omitempty"`
	CooldownUntil *time.Time `gorm:"index:idx_instances_cooldown_until" json:"cooldown_until,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_instances_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Provider *GatewayProvider `gorm:"foreignKey:ProviderID;references:ID" json:"provider,omitempty"`
}

func (Instance) TableName() string {
	return "instances"
}

// BeforeCreate is called before creating a new record
func (i *Instance) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == uuid.Nil {
		i.UUID = uuid.New()
	}
	if i.Status == "" {
		i.Status = InstanceStatusOK
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = utils.UTCNow()
	}
	return nil
}

// InCooldown reports whether the instance is excluded from selection at the given time
func (i *Instance) InCooldown(now time.Time) bool {
	return i.CooldownUntil != nil && now.Before(*i.CooldownUntil)
}

// HasQuotaRemaining reports whether the instance is under its daily limit
// A nil DailyLimit means unlimited
func (i *Instance) HasQuotaRemaining() bool {
	return i.DailyLimit == nil || i.SentToday < *i.DailyLimit
}

// IsEligible evaluates the full dispatch eligibility predicate
// The repository claim is still authoritative; this is a read-side filter
func (i *Instance) IsEligible(now time.Time) bool {
	return utils.IsTrue(i.IsActive) &&
		i.Status == InstanceStatusOK &&
		!i.InCooldown(now) &&
		i.HasQuotaRemaining()
}

// InstanceFilter represents filter criteria for instance queries
type InstanceFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	ProviderID    *uint
	Name          *string
	PhoneNumber   *string
	Status        *InstanceStatus
	IsActive      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
