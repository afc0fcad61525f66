package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
)

// ResetMarkerRepositoryImpl implements ResetMarkerRepository interface
type ResetMarkerRepositoryImpl struct {
	db *gorm.DB
}

// NewResetMarkerRepository creates a new reset marker repository
func NewResetMarkerRepository(db *gorm.DB) ResetMarkerRepository {
	return &ResetMarkerRepositoryImpl{db: db}
}

func (r *ResetMarkerRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// ByName retrieves the marker for a named sweep, nil when never recorded
func (r *ResetMarkerRepositoryImpl) ByName(ctx context.Context, name string) (*models.ResetMarker, error) {
	db := r.getDB(ctx)

	var marker models.ResetMarker
	err := db.Where("name = ?", name).Last(&marker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &marker, nil
}

// Upsert records the boundary just completed for a named sweep
func (r *ResetMarkerRepositoryImpl) Upsert(ctx context.Context, name, boundary string) error {
	db := r.getDB(ctx)

	marker := models.ResetMarker{
		Name:         name,
		LastBoundary: boundary,
		CreatedAt:    utils.UTCNow(),
		UpdatedAt:    utils.UTCNow(),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_boundary", "updated_at"}),
	}).Create(&marker).Error
}
