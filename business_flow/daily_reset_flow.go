package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/repository"
	"github.com/simurgh-io/simurgh/utils"
)

// resetLockKey guards the sweep across replicas; held only for the sweep itself
const resetLockKey = "simurgh:daily_reset:lock"

const defaultResetLockTTL = 2 * time.Minute

// DailyResetFlow zeroes per-instance daily counters once per calendar boundary
type DailyResetFlow interface {
	ShouldReset(ctx context.Context) (bool, error)
	ResetDailyCounters(ctx context.Context) (int64, error)
	NextResetTime() time.Time
	LastResetBoundary(ctx context.Context) (string, error)
}

// DailyResetFlowImpl implements the daily reset flow.
// The boundary is midnight in one configured IANA zone; the marker stores the
// boundary date so replicas agree regardless of host timezones.
type DailyResetFlowImpl struct {
	instanceRepo repository.InstanceRepository
	markerRepo   repository.ResetMarkerRepository
	db           *gorm.DB
	rc           *redis.Client
	zone         *time.Location
	lockTTL      time.Duration
}

// NewDailyResetFlow creates a new daily reset flow instance.
// rc may be nil when Redis is disabled; the sweep then runs unguarded, which
// is safe for a single replica because the sweep itself is idempotent.
func NewDailyResetFlow(
	instanceRepo repository.InstanceRepository,
	markerRepo repository.ResetMarkerRepository,
	db *gorm.DB,
	rc *redis.Client,
	zone *time.Location,
	lockTTL time.Duration,
) DailyResetFlow {
	if zone == nil {
		zone = time.UTC
	}
	if lockTTL <= 0 {
		lockTTL = defaultResetLockTTL
	}
	return &DailyResetFlowImpl{
		instanceRepo: instanceRepo,
		markerRepo:   markerRepo,
		db:           db,
		rc:           rc,
		zone:         zone,
		lockTTL:      lockTTL,
	}
}

// NextResetTime returns the next boundary instant in UTC
func (s *DailyResetFlowImpl) NextResetTime() time.Time {
	return utils.NextMidnightIn(utils.UTCNow(), s.zone)
}

// ShouldReset compares the persisted marker against the current boundary date
func (s *DailyResetFlowImpl) ShouldReset(ctx context.Context) (bool, error) {
	marker, err := s.markerRepo.ByName(ctx, models.DailyResetMarkerName)
	if err != nil {
		return false, NewBusinessError("RESET_MARKER_READ_FAILED", "Failed to read reset marker", err)
	}
	current := utils.BoundaryDateIn(utils.UTCNow(), s.zone)
	if marker == nil {
		return true, nil
	}
	return marker.LastBoundary != current, nil
}

// LastResetBoundary returns the boundary date last completed, empty when never run
func (s *DailyResetFlowImpl) LastResetBoundary(ctx context.Context) (string, error) {
	marker, err := s.markerRepo.ByName(ctx, models.DailyResetMarkerName)
	if err != nil {
		return "", err
	}
	if marker == nil {
		return "", nil
	}
	return marker.LastBoundary, nil
}

// ResetDailyCounters performs the sweep. Idempotent within a boundary: the
// sweep is an unconditional set-to-zero of every instance row plus a marker
// upsert in one transaction, so a second call inside the same boundary finds
// counters already at zero and only rewrites them. The returned count is rows
// touched by the sweep, not rows that changed value.
// The Redis lock keeps two replicas from sweeping concurrently; losing the
// lock means another replica is on it, so we report ErrResetLockHeld and let
// the caller's next tick observe the marker instead.
func (s *DailyResetFlowImpl) ResetDailyCounters(ctx context.Context) (int64, error) {
	release, err := s.acquireLock(ctx)
	if err != nil {
		if errors.Is(err, ErrResetLockHeld) {
			resetSweepsTotal.WithLabelValues("skipped").Inc()
		} else {
			resetSweepsTotal.WithLabelValues("error").Inc()
		}
		return 0, err
	}
	defer release()

	var resetCount int64
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		resetCount, err = s.instanceRepo.ZeroDailyCounters(txCtx)
		if err != nil {
			return fmt.Errorf("zero daily counters: %w", err)
		}

		boundary := utils.BoundaryDateIn(utils.UTCNow(), s.zone)
		if err := s.markerRepo.Upsert(txCtx, models.DailyResetMarkerName, boundary); err != nil {
			return fmt.Errorf("record reset boundary: %w", err)
		}
		return nil
	})
	if err != nil {
		resetSweepsTotal.WithLabelValues("error").Inc()
		return 0, NewBusinessError("RESET_SWEEP_FAILED", "Daily counter reset failed", err)
	}

	resetSweepsTotal.WithLabelValues("done").Inc()
	return resetCount, nil
}

func (s *DailyResetFlowImpl) acquireLock(ctx context.Context) (func(), error) {
	if s.rc == nil {
		return func() {}, nil
	}

	ok, err := s.rc.SetNX(ctx, resetLockKey, utils.UTCNowRFC3339(), s.lockTTL).Result()
	if err != nil {
		return nil, NewBusinessError("RESET_LOCK_FAILED", "Failed to acquire reset lock", err)
	}
	if !ok {
		return nil, ErrResetLockHeld
	}
	return func() {
		delCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.rc.Del(delCtx, resetLockKey).Err()
	}, nil
}
