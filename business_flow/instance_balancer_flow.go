package businessflow

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/repository"
	"github.com/simurgh-io/simurgh/utils"
)

// SendOutcome classifies one gateway call against an instance
type SendOutcome int

const (
	SendOutcomeSuccess SendOutcome = iota
	SendOutcomeRateLimited
	SendOutcomeHardFailure
)

// InstanceBalancerFlow picks the instance used for one unit of outbound work
// and feeds gateway outcomes back into the pool's cooldown state
type InstanceBalancerFlow interface {
	SelectInstanceForDispatch(ctx context.Context) (*models.Instance, error)
	RegisterRateLimit(ctx context.Context, instanceID uint) (time.Time, error)
	RegisterSendOutcome(ctx context.Context, instanceID uint, outcome SendOutcome) error
	ReportSendOutcome(ctx context.Context, instanceUUID string, req *dto.SendOutcomeRequest) (*dto.SendOutcomeResponse, error)
}

// InstanceBalancerFlowImpl implements the instance balancer flow
type InstanceBalancerFlowImpl struct {
	instanceRepo repository.InstanceRepository
}

// NewInstanceBalancerFlow creates a new instance balancer flow instance
func NewInstanceBalancerFlow(instanceRepo repository.InstanceRepository) InstanceBalancerFlow {
	return &InstanceBalancerFlowImpl{instanceRepo: instanceRepo}
}

// SelectInstanceForDispatch walks the eligible pool in least-recently-used
// order and claims quota with the repository's conditional update. The read
// only establishes ordering; admission is decided by TryConsumeQuota, so a
// concurrent selector that wins the last unit under daily_limit simply makes
// this call fall through to the next candidate.
func (s *InstanceBalancerFlowImpl) SelectInstanceForDispatch(ctx context.Context) (*models.Instance, error) {
	now := utils.UTCNow()

	eligible, err := s.instanceRepo.ListEligible(ctx, now)
	if err != nil {
		instanceSelectionsTotal.WithLabelValues("error").Inc()
		return nil, NewBusinessError("INSTANCE_LIST_FAILED", "Failed to list eligible instances", err)
	}
	if len(eligible) == 0 {
		if exhausted, checkErr := s.onlyQuotaBlocks(ctx, now); checkErr == nil && exhausted {
			instanceSelectionsTotal.WithLabelValues("quota_exceeded").Inc()
			return nil, ErrQuotaExceeded
		}
		instanceSelectionsTotal.WithLabelValues("none_available").Inc()
		return nil, ErrNoInstanceAvailable
	}

	for _, candidate := range eligible {
		claimed, err := s.instanceRepo.TryConsumeQuota(ctx, candidate.ID, now)
		if err != nil {
			instanceSelectionsTotal.WithLabelValues("error").Inc()
			return nil, NewBusinessError("QUOTA_CLAIM_FAILED", "Failed to claim instance quota", err)
		}
		if claimed {
			candidate.SentToday++
			candidate.LastUsedAt = &now
			instanceSelectionsTotal.WithLabelValues("claimed").Inc()
			return candidate, nil
		}
		// Raced out or the instance became ineligible between read and claim.
	}

	instanceSelectionsTotal.WithLabelValues("none_available").Inc()
	return nil, ErrNoInstanceAvailable
}

// onlyQuotaBlocks reports whether every active healthy instance is excluded
// solely because its daily limit is spent, so callers can say "try tomorrow"
// instead of a generic unavailability.
func (s *InstanceBalancerFlowImpl) onlyQuotaBlocks(ctx context.Context, now time.Time) (bool, error) {
	filter := models.InstanceFilter{
		IsActive: utils.ToPtr(true),
		Status:   utils.ToPtr(models.InstanceStatusOK),
	}
	healthy, err := s.instanceRepo.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return false, err
	}
	if len(healthy) == 0 {
		return false, nil
	}
	for _, inst := range healthy {
		if inst.InCooldown(now) {
			return false, nil
		}
	}
	return true, nil
}

// RegisterRateLimit reacts to a rate-limit response from the gateway: the
// occurrence counter and cooldown are written in one conditional update that
// derives the backoff from the stored count, so concurrent signals never
// shorten a cooldown another signal already set. The cooldown grows
// exponentially with the day's occurrence count, keeping repeatedly throttled
// instances excluded longer each time.
func (s *InstanceBalancerFlowImpl) RegisterRateLimit(ctx context.Context, instanceID uint) (time.Time, error) {
	_, until, err := s.instanceRepo.ApplyRateLimitCooldown(ctx, instanceID, utils.UTCNow())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, ErrInstanceNotFound
		}
		return time.Time{}, NewBusinessError("COOLDOWN_APPLY_FAILED", "Failed to apply rate-limit cooldown", err)
	}

	rateLimitCooldownsTotal.Inc()
	return until, nil
}

// RegisterSendOutcome feeds a gateway call result back into the pool
func (s *InstanceBalancerFlowImpl) RegisterSendOutcome(ctx context.Context, instanceID uint, outcome SendOutcome) error {
	switch outcome {
	case SendOutcomeSuccess:
		// Quota was already consumed at claim time; nothing further.
		return nil
	case SendOutcomeRateLimited:
		_, err := s.RegisterRateLimit(ctx, instanceID)
		return err
	case SendOutcomeHardFailure:
		if err := s.instanceRepo.IncrementErrorCount(ctx, instanceID); err != nil {
			return NewBusinessError("ERROR_COUNT_FAILED", "Failed to record send failure", err)
		}
		return nil
	default:
		return NewBusinessError("UNKNOWN_OUTCOME", "Unknown send outcome", nil)
	}
}

// ReportSendOutcome is the worker-facing entry point for outcome feedback: it
// resolves the instance by UUID and applies the reported result to the pool
// state. A rate_limited report returns the cooldown deadline it set.
func (s *InstanceBalancerFlowImpl) ReportSendOutcome(ctx context.Context, instanceUUID string, req *dto.SendOutcomeRequest) (*dto.SendOutcomeResponse, error) {
	instance, err := s.instanceRepo.ByUUID(ctx, instanceUUID)
	if err != nil {
		return nil, NewBusinessError("INSTANCE_LOOKUP_FAILED", "Failed to look up instance", err)
	}
	if instance == nil {
		return nil, NewBusinessError("INSTANCE_NOT_FOUND", "instance not found", ErrInstanceNotFound)
	}

	resp := &dto.SendOutcomeResponse{
		InstanceUUID: instance.UUID.String(),
		Outcome:      req.Outcome,
	}
	switch req.Outcome {
	case "success":
		return resp, nil
	case "rate_limited":
		until, err := s.RegisterRateLimit(ctx, instance.ID)
		if err != nil {
			return nil, err
		}
		resp.CooldownUntil = utils.ToPtr(until.Format(time.RFC3339))
		return resp, nil
	case "hard_failure":
		if err := s.RegisterSendOutcome(ctx, instance.ID, SendOutcomeHardFailure); err != nil {
			return nil, err
		}
		return resp, nil
	default:
		return nil, NewBusinessError("UNKNOWN_OUTCOME", "Unknown send outcome", nil)
	}
}

// CooldownBackoff returns the cooldown applied on the n-th rate-limit event of
// the day: base * 2^(n-1), capped at the ceiling. Strictly monotonic in n
// below the cap.
func CooldownBackoff(n int64) time.Duration {
	if n < 1 {
		n = 1
	}
	d := utils.CooldownBase
	for i := int64(1); i < n; i++ {
		d *= 2
		if d >= utils.CooldownCeiling {
			return utils.CooldownCeiling
		}
	}
	if d > utils.CooldownCeiling {
		return utils.CooldownCeiling
	}
	return d
}
