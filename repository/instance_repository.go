package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
)

// InstanceRepositoryImpl implements InstanceRepository interface
type InstanceRepositoryImpl struct {
	*BaseRepository[models.Instance, models.InstanceFilter]
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *gorm.DB) InstanceRepository {
	return &InstanceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Instance, models.InstanceFilter](db),
	}
}

// ByUUID retrieves an instance by UUID (string)
func (r *InstanceRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Instance, error) {
	parsed, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.InstanceFilter{UUID: &parsed}
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// Update persists the full instance row. Counter fields must not be changed
// through this path; use the conditional update methods instead.
func (r *InstanceRepositoryImpl) Update(ctx context.Context, instance models.Instance) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	instance.UpdatedAt = utils.UTCNow()
	err = db.Model(&models.Instance{}).
		Where("id = ?", instance.ID).
		Select("name", "phone_number", "daily_limit", "is_active", "updated_at").
		Updates(&instance).Error
	if err != nil {
		return err
	}

	return nil
}

// SetActive toggles the instance activation flag (soft delete path)
func (r *InstanceRepositoryImpl) SetActive(ctx context.Context, id uint, active bool) error {
	db := r.getDB(ctx)
	return db.Model(&models.Instance{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": utils.UTCNow(),
		}).Error
}

// SetStatus records a health status transition
func (r *InstanceRepositoryImpl) SetStatus(ctx context.Context, id uint, status models.InstanceStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid instance status: %s", status)
	}
	db := r.getDB(ctx)
	return db.Model(&models.Instance{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error
}

// ListEligible returns instances passing the dispatch eligibility predicate,
// least-recently-used first so load spreads evenly across the pool.
func (r *InstanceRepositoryImpl) ListEligible(ctx context.Context, now time.Time) ([]*models.Instance, error) {
	db := r.getDB(ctx)

	var instances []*models.Instance
	err := db.
		Where("is_active = ?", true).
		Where("status = ?", models.InstanceStatusOK).
		Where("cooldown_until IS NULL OR cooldown_until <= ?", now).
		Where("daily_limit IS NULL OR sent_today < daily_limit").
		Order("last_used_at ASC NULLS FIRST").
		Order("sent_today ASC").
		Find(&instances).Error
	if err != nil {
		return nil, err
	}

	return instances, nil
}

// TryConsumeQuota claims one quota unit with a single conditional UPDATE. The
// WHERE clause repeats the eligibility predicate so two concurrent claims can
// never both land on the last unit under daily_limit.
func (r *InstanceRepositoryImpl) TryConsumeQuota(ctx context.Context, id uint, now time.Time) (bool, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.Instance{}).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Where("status = ?", models.InstanceStatusOK).
		Where("cooldown_until IS NULL OR cooldown_until <= ?", now).
		Where("daily_limit IS NULL OR sent_today < daily_limit").
		Updates(map[string]any{
			"sent_today":   gorm.Expr("sent_today + 1"),
			"last_used_at": now,
			"updated_at":   utils.UTCNow(),
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

// ApplyRateLimitCooldown records a rate-limit signal: one statement bumps the
// counter and derives the cooldown from the stored count, so the backoff is
// always computed against the row, never an app-side read. The column
// reference on the right-hand side holds the pre-increment value, which makes
// the exponent for the n-th signal exactly n-1.
func (r *InstanceRepositoryImpl) ApplyRateLimitCooldown(ctx context.Context, id uint, now time.Time) (int64, time.Time, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.Instance{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"rate_limit_count_today": gorm.Expr("rate_limit_count_today + 1"),
			"cooldown_until": gorm.Expr(
				"? + make_interval(secs => LEAST(? * power(2, rate_limit_count_today), ?))",
				now, utils.CooldownBase.Seconds(), utils.CooldownCeiling.Seconds()),
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return 0, time.Time{}, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, time.Time{}, gorm.ErrRecordNotFound
	}

	var instance models.Instance
	if err := db.Select("rate_limit_count_today", "cooldown_until").First(&instance, id).Error; err != nil {
		return 0, time.Time{}, err
	}
	var until time.Time
	if instance.CooldownUntil != nil {
		until = *instance.CooldownUntil
	}

	return instance.RateLimitCountToday, until, nil
}

// IncrementErrorCount bumps error_today after a hard send failure
func (r *InstanceRepositoryImpl) IncrementErrorCount(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	return db.Model(&models.Instance{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"error_today": gorm.Expr("error_today + 1"),
			"updated_at":  utils.UTCNow(),
		}).Error
}

// ZeroDailyCounters sweeps all instances back to zero counters. The write is
// an absolute set, never a subtraction, so interleaving with a concurrent
// claim only decides which side wins the last write.
func (r *InstanceRepositoryImpl) ZeroDailyCounters(ctx context.Context) (int64, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.Instance{}).
		Where("1 = 1").
		Updates(map[string]any{
			"sent_today":             0,
			"error_today":            0,
			"rate_limit_count_today": 0,
			"updated_at":             utils.UTCNow(),
		})
	if res.Error != nil {
		return 0, res.Error
	}

	return res.RowsAffected, nil
}

// CountActiveByProvider returns providerID -> active instance count
func (r *InstanceRepositoryImpl) CountActiveByProvider(ctx context.Context) (map[uint]int64, error) {
	db := r.getDB(ctx)

	type providerCount struct {
		ProviderID uint
		Cnt        int64
	}
	var rows []providerCount
	err := db.Model(&models.Instance{}).
		Select("provider_id, COUNT(*) AS cnt").
		Where("is_active = ?", true).
		Group("provider_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.ProviderID] = row.Cnt
	}
	return counts, nil
}

// ByFilter retrieves instances based on filter criteria
func (r *InstanceRepositoryImpl) ByFilter(ctx context.Context, filter models.InstanceFilter, orderBy string, limit, offset int) ([]*models.Instance, error) {
	db := r.getDB(ctx)

	var instances []*models.Instance
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	query = query.Preload("Provider")

	err := query.Find(&instances).Error
	if err != nil {
		return nil, err
	}

	return instances, nil
}

// Count returns the number of instances matching the filter
func (r *InstanceRepositoryImpl) Count(ctx context.Context, filter models.InstanceFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Instance{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any instance matching the filter exists
func (r *InstanceRepositoryImpl) Exists(ctx context.Context, filter models.InstanceFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *InstanceRepositoryImpl) applyFilter(query *gorm.DB, filter models.InstanceFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.ProviderID != nil {
		query = query.Where("provider_id = ?", *filter.ProviderID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if filter.PhoneNumber != nil {
		query = query.Where("phone_number = ?", *filter.PhoneNumber)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
