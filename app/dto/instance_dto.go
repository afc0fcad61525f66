package dto

// ProvisionInstanceRequest creates a new sending instance on the least-loaded provider
type ProvisionInstanceRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=255"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,min=7,max=20"`
	DailyLimit  *int64  `json:"daily_limit,omitempty" validate:"omitempty,min=1"`
}

// UpdateInstanceRequest mutates limits and activation of an instance
type UpdateInstanceRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=2,max=255"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,min=7,max=20"`
	DailyLimit  *int64  `json:"daily_limit,omitempty" validate:"omitempty,min=1"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// SetInstanceStatusRequest records a health transition
type SetInstanceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ok degraded unreachable"`
}

// ProvisionInstanceResponse carries the new instance plus the pairing QR code
type ProvisionInstanceResponse struct {
	Instance InstanceDTO `json:"instance"`
	QRCode   string      `json:"qr_code,omitempty"`
}

// InstanceDTO is the read model for one pool member
type InstanceDTO struct {
	UUID                string  `json:"uuid"`
	ProviderUUID        string  `json:"provider_uuid,omitempty"`
	ProviderName        string  `json:"provider_name,omitempty"`
	Name                string  `json:"name"`
	PhoneNumber         *string `json:"phone_number,omitempty"`
	Status              string  `json:"status"`
	IsActive            bool    `json:"is_active"`
	DailyLimit          *int64  `json:"daily_limit,omitempty"`
	SentToday           int64   `json:"sent_today"`
	ErrorToday          int64   `json:"error_today"`
	RateLimitCountToday int64   `json:"rate_limit_count_today"`
	LastUsedAt          *string `json:"last_used_at,omitempty"`
	CooldownUntil       *string `json:"cooldown_until,omitempty"`
}

// ListInstancesResponse wraps the pool listing
type ListInstancesResponse struct {
	Items []InstanceDTO `json:"items"`
	Total int64         `json:"total"`
}

// SendOutcomeRequest is a worker's report of one gateway call result
type SendOutcomeRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=success rate_limited hard_failure"`
}

// SendOutcomeResponse echoes the recorded outcome; CooldownUntil is set only
// when the report put the instance into cooldown
type SendOutcomeResponse struct {
	InstanceUUID  string  `json:"instance_uuid"`
	Outcome       string  `json:"outcome"`
	CooldownUntil *string `json:"cooldown_until,omitempty"`
}
