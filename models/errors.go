package models

import "errors"

// Validation errors for dispatch job payloads
var (
	ErrInvalidJobKind     = errors.New("invalid dispatch job kind")
	ErrJobPhoneRequired   = errors.New("dispatch job phone number is required")
	ErrJobMessageRequired = errors.New("send-message job requires a message body")
	ErrJobGroupRequired   = errors.New("add-to-group job requires a group ID")
)
