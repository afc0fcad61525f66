package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
)

// GatewayProviderRepositoryImpl implements GatewayProviderRepository interface
type GatewayProviderRepositoryImpl struct {
	*BaseRepository[models.GatewayProvider, models.GatewayProviderFilter]
}

// NewGatewayProviderRepository creates a new gateway provider repository
func NewGatewayProviderRepository(db *gorm.DB) GatewayProviderRepository {
	return &GatewayProviderRepositoryImpl{
		BaseRepository: NewBaseRepository[models.GatewayProvider, models.GatewayProviderFilter](db),
	}
}

// ByUUID retrieves a gateway provider by UUID (string)
func (r *GatewayProviderRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.GatewayProvider, error) {
	parsed, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.GatewayProviderFilter{UUID: &parsed}
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// ByName retrieves a gateway provider by its unique name
func (r *GatewayProviderRepositoryImpl) ByName(ctx context.Context, name string) (*models.GatewayProvider, error) {
	db := r.getDB(ctx)

	var provider models.GatewayProvider
	err := db.Where("name = ?", name).Last(&provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &provider, nil
}

// ListActive returns all providers eligible to host new instances
func (r *GatewayProviderRepositoryImpl) ListActive(ctx context.Context) ([]*models.GatewayProvider, error) {
	filter := models.GatewayProviderFilter{IsActive: utils.ToPtr(true)}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// Update persists the full provider row
func (r *GatewayProviderRepositoryImpl) Update(ctx context.Context, provider models.GatewayProvider) error {
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

	provider.UpdatedAt = utils.UTCNow()
	err = db.Save(&provider).Error
	if err != nil {
		return err
	}

	return nil
}

// SetActive toggles the provider activation flag
func (r *GatewayProviderRepositoryImpl) SetActive(ctx context.Context, id uint, active bool) error {
	db := r.getDB(ctx)
	return db.Model(&models.GatewayProvider{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": utils.UTCNow(),
		}).Error
}

// RotateAPIKey replaces the provider credential
func (r *GatewayProviderRepositoryImpl) RotateAPIKey(ctx context.Context, id uint, apiKey string) error {
	db := r.getDB(ctx)
	return db.Model(&models.GatewayProvider{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"api_key":    apiKey,
			"updated_at": utils.UTCNow(),
		}).Error
}

// ByFilter retrieves gateway providers based on filter criteria
func (r *GatewayProviderRepositoryImpl) ByFilter(ctx context.Context, filter models.GatewayProviderFilter, orderBy string, limit, offset int) ([]*models.GatewayProvider, error) {
	db := r.getDB(ctx)

	var providers []*models.GatewayProvider
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

	err := query.Find(&providers).Error
	if err != nil {
		return nil, err
	}

	return providers, nil
}

// Count returns the number of providers matching the filter
func (r *GatewayProviderRepositoryImpl) Count(ctx context.Context, filter models.GatewayProviderFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.GatewayProvider{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any provider matching the filter exists
func (r *GatewayProviderRepositoryImpl) Exists(ctx context.Context, filter models.GatewayProviderFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *GatewayProviderRepositoryImpl) applyFilter(query *gorm.DB, filter models.GatewayProviderFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
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
