package models

import (
	"time"

	"github.com/google/uuid"
)

// DispatchJobKind distinguishes send-message jobs from add-to-group jobs
type DispatchJobKind string

const (
	DispatchJobSendMessage DispatchJobKind = "send_message"
	DispatchJobAddToGroup  DispatchJobKind = "add_to_group"
)

// Valid checks if the kind is valid
func (k DispatchJobKind) Valid() bool {
	return k == DispatchJobSendMessage || k == DispatchJobAddToGroup
}

// DelayConfig is an optional per-job pacing hint for the consuming worker
type DelayConfig struct {
	MinSeconds int `json:"min_seconds"`
	MaxSeconds int `json:"max_seconds"`
}

// DispatchJob is one immutable unit of outbound work published to the broker.
// It is a wire payload, not a stored row: durability comes from the persistent
// queue, and the consuming worker must be idempotent on JobID under
// at-least-once delivery.
type DispatchJob struct {
	JobID        uuid.UUID       `json:"job_id"`
	CampaignUUID uuid.UUID       `json:"campaign_uuid"`
	CustomerID   uint            `json:"customer_id"`
	Kind         DispatchJobKind `json:"kind"`

	ContactID   uint   `json:"contact_id"`
	PhoneNumber string `json:"phone_number"`

	// Send-message jobs
	MessageBody *string `json:"message_body,omitempty"`

	// Add-to-group jobs
	GroupID    *string `json:"group_id,omitempty"`
	GroupLabel *string `json:"group_label,omitempty"`

	// Set when the producer resolved an instance ahead of time (per-job strategy)
	InstanceUUID *uuid.UUID `json:"instance_uuid,omitempty"`

	Delay     *DelayConfig `json:"delay,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Validate reports whether the job carries the fields its kind requires
func (j *DispatchJob) Validate() error {
	if !j.Kind.Valid() {
		return ErrInvalidJobKind
	}
	if j.PhoneNumber == "" {
		return ErrJobPhoneRequired
	}
	switch j.Kind {
	case DispatchJobSendMessage:
		if j.MessageBody == nil || *j.MessageBody == "" {
			return ErrJobMessageRequired
		}
	case DispatchJobAddToGroup:
		if j.GroupID == nil || *j.GroupID == "" {
			return ErrJobGroupRequired
		}
	}
	return nil
}
