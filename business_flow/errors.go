// Package businessflow contains the core business logic for outbound-instance scheduling
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Provisioning errors
	ErrNoProviderAvailable = errors.New("no active gateway provider available")
	ErrProviderNotFound    = errors.New("gateway provider not found")
	ErrProviderInactive    = errors.New("gateway provider is inactive")

	// Dispatch selection errors
	ErrNoInstanceAvailable = errors.New("no eligible instance available")
	ErrQuotaExceeded       = errors.New("all instances exhausted their daily quota")
	ErrInstanceNotFound    = errors.New("instance not found")

	// Queue errors
	ErrEnqueueFailed     = errors.New("dispatch job enqueue failed")
	ErrBrokerUnavailable = errors.New("message broker unavailable")

	// Campaign errors
	ErrCampaignNotFound        = errors.New("campaign not found")
	ErrCampaignTerminal        = errors.New("campaign already completed or failed")
	ErrNoContactsProvided      = errors.New("at least one contact is required")
	ErrTooManyContacts         = errors.New("contact list exceeds dispatch limit")
	ErrInvalidStrategy         = errors.New("invalid assignment strategy")
	ErrInstanceNameRequired    = errors.New("instance name is required")
	ErrInstanceNameTaken       = errors.New("instance name already in use")
	ErrInvalidInstanceStatus   = errors.New("invalid instance status")
	ErrProviderNameRequired    = errors.New("provider name is required")
	ErrProviderNameTaken       = errors.New("provider name already in use")
	ErrProviderEndpointInvalid = errors.New("provider endpoint URL is invalid")

	// Reset errors
	ErrResetLockHeld = errors.New("daily reset already running elsewhere")

	// Admin auth errors
	ErrAdminNotFound     = errors.New("admin not found")
	ErrIncorrectPassword = errors.New("incorrect password")
)

// BusinessError represents a business logic error with a machine-readable code
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsNoProviderAvailable(err error) bool {
	return errors.Is(err, ErrNoProviderAvailable)
}

func IsNoInstanceAvailable(err error) bool {
	return errors.Is(err, ErrNoInstanceAvailable)
}

func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

func IsEnqueueFailed(err error) bool {
	return errors.Is(err, ErrEnqueueFailed)
}

func IsBrokerUnavailable(err error) bool {
	return errors.Is(err, ErrBrokerUnavailable)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsResetLockHeld(err error) bool {
	return errors.Is(err, ErrResetLockHeld)
}

func IsCampaignTerminal(err error) bool {
	return errors.Is(err, ErrCampaignTerminal)
}

func IsNoContactsProvided(err error) bool {
	return errors.Is(err, ErrNoContactsProvided)
}

func IsTooManyContacts(err error) bool {
	return errors.Is(err, ErrTooManyContacts)
}

func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

func IsInstanceNameTaken(err error) bool {
	return errors.Is(err, ErrInstanceNameTaken)
}

func IsProviderNotFound(err error) bool {
	return errors.Is(err, ErrProviderNotFound)
}

func IsProviderNameTaken(err error) bool {
	return errors.Is(err, ErrProviderNameTaken)
}

func IsAdminNotFound(err error) bool {
	return errors.Is(err, ErrAdminNotFound)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}
