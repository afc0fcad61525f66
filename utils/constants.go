package utils

import (
	"time"
)

// Rate-limit cooldown backoff constants
const (
	// CooldownBase is the cooldown applied on the first rate-limit event of the day
	CooldownBase = time.Minute

	// CooldownCeiling caps the exponential cooldown growth
	CooldownCeiling = 6 * time.Hour
)

// Dispatch constants
const (
	// DispatchRequestTimeout bounds one synchronous dispatch request
	DispatchRequestTimeout = 30 * time.Second

	// MaxContactsPerDispatch bounds a single campaign dispatch request
	MaxContactsPerDispatch = 50000
)

// Broker constants
const (
	// BrokerConnectAttempts is the number of dial attempts before a publish fails
	BrokerConnectAttempts = 3

	// BrokerConnectBackoff is the initial delay between dial attempts (doubled per attempt)
	BrokerConnectBackoff = 500 * time.Millisecond
)
