package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
)

// CampaignRepositoryImpl implements CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByUUID retrieves a campaign by UUID (string)
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	parsed, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	db := r.getDB(ctx)
	var campaign models.Campaign
	err = db.Where("uuid = ?", parsed).Last(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &campaign, nil
}

// Update persists the full campaign row
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign models.Campaign) error {
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

	now := utils.UTCNow()
	campaign.UpdatedAt = &now

	err = db.Save(&campaign).Error
	if err != nil {
		return err
	}

	return nil
}

// UpdateStatus moves the campaign to a new status, enforcing the transitions
// pending -> running -> completed|failed at the SQL level so a terminal row
// never regresses.
func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid campaign status: %s", status)
	}

	db := r.getDB(ctx)
	res := db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Where("status NOT IN ?", []models.CampaignStatus{
			models.CampaignStatusCompleted,
			models.CampaignStatusFailed,
		}).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("campaign %d not found or already terminal", id)
	}
	return nil
}

// AddProgress applies worker progress deltas atomically and returns the
// updated row so the caller can decide on completion.
func (r *CampaignRepositoryImpl) AddProgress(ctx context.Context, id uint, processedDelta, failedDelta int64) (*models.Campaign, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed_contacts": gorm.Expr("processed_contacts + ?", processedDelta),
			"failed_contacts":    gorm.Expr("failed_contacts + ?", failedDelta),
			"updated_at":         utils.UTCNow(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	return r.ByID(ctx, id)
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
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

	err := query.Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	return campaigns, nil
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any campaign matching the filter exists
func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *CampaignRepositoryImpl) applyFilter(query *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
