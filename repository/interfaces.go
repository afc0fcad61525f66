// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/simurgh-io/simurgh/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// GatewayProviderRepository defines operations for upstream gateway providers
type GatewayProviderRepository interface {
	Repository[models.GatewayProvider, models.GatewayProviderFilter]
	ByUUID(ctx context.Context, uuid string) (*models.GatewayProvider, error)
	ByName(ctx context.Context, name string) (*models.GatewayProvider, error)
	ListActive(ctx context.Context) ([]*models.GatewayProvider, error)
	Update(ctx context.Context, provider models.GatewayProvider) error
	SetActive(ctx context.Context, id uint, active bool) error
	RotateAPIKey(ctx context.Context, id uint, apiKey string) error
}

// InstanceRepository defines operations for the instance pool.
// All counter mutations are single conditional UPDATEs; callers must never
// read counters and write them back.
type InstanceRepository interface {
	Repository[models.Instance, models.InstanceFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Instance, error)
	Update(ctx context.Context, instance models.Instance) error
	SetActive(ctx context.Context, id uint, active bool) error
	SetStatus(ctx context.Context, id uint, status models.InstanceStatus) error

	// ListEligible returns dispatch-eligible instances ordered by
	// last_used_at ASC NULLS FIRST, sent_today ASC.
	ListEligible(ctx context.Context, now time.Time) ([]*models.Instance, error)

	// TryConsumeQuota atomically claims one quota unit on the instance. It
	// re-checks the whole eligibility predicate inside the UPDATE so a claim
	// can never push sent_today past daily_limit. Returns false when the row
	// was not claimed (raced out, limit hit, cooldown set, or deactivated).
	TryConsumeQuota(ctx context.Context, id uint, now time.Time) (bool, error)

	// ApplyRateLimitCooldown increments rate_limit_count_today and derives
	// cooldown_until from the stored count in one statement, so concurrent
	// signals never compute the backoff from a stale count. Returns the
	// post-increment count and the cooldown deadline it set.
	ApplyRateLimitCooldown(ctx context.Context, id uint, now time.Time) (int64, time.Time, error)

	// IncrementErrorCount bumps error_today after a hard send failure.
	IncrementErrorCount(ctx context.Context, id uint) error

	// ZeroDailyCounters sweeps every instance row back to zero counters and
	// returns the number of rows touched (unconditional, not differential).
	ZeroDailyCounters(ctx context.Context) (int64, error)

	// CountActiveByProvider returns providerID -> number of active instances.
	CountActiveByProvider(ctx context.Context) (map[uint]int64, error)
}

// CampaignRepository defines operations for outreach runs
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	Update(ctx context.Context, campaign models.Campaign) error
	UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error

	// AddProgress atomically increments processed/failed counts and returns
	// the updated row.
	AddProgress(ctx context.Context, id uint, processedDelta, failedDelta int64) (*models.Campaign, error)
}

// ResetMarkerRepository defines operations for periodic sweep markers
type ResetMarkerRepository interface {
	ByName(ctx context.Context, name string) (*models.ResetMarker, error)
	Upsert(ctx context.Context, name, boundary string) error
}
