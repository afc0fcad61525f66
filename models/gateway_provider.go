// Package models contains domain entities and business models for the outbound scheduling system
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simurgh-io/simurgh/utils"
)

// GatewayProvider represents an upstream WhatsApp gateway endpoint
// Instances are provisioned against exactly one provider
// Table: gateway_providers
// Never hard-deleted while referenced by any instance; use IsActive instead
type GatewayProvider struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_gateway_providers_uuid" json:"uuid"`

	Name        string `gorm:"size:255;not null;uniqueIndex:uk_gateway_providers_name" json:"name"`
	EndpointURL string `gorm:"size:512;not null" json:"endpoint_url"`
	APIKey      string `gorm:"size:512;not null" json:"-"`

	IsActive  *bool     `gorm:"default:true;index:idx_gateway_providers_is_active" json:"is_active"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_gateway_providers_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Instances []Instance `gorm:"foreignKey:ProviderID" json:"instances,omitempty"`
}

func (GatewayProvider) TableName() string {
	return "gateway_providers"
}

// BeforeCreate is called before creating a new record
func (p *GatewayProvider) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = utils.UTCNow()
	}
	return nil
}

// GatewayProviderFilter represents filter criteria for gateway provider queries
type GatewayProviderFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	Name          *string
	IsActive      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
