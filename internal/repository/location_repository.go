package repository

import (
	"context"
	"fmt"

	"geoping/internal/metrics"
	"geoping/internal/models"

	"gorm.io/gorm"
)

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Insert appends loc and returns the identity assigned by the store.
func (r *LocationRepository) Insert(ctx context.Context, loc *models.Location) (int64, error) {
	loc.ID = 0
	if err := r.db.WithContext(ctx).Create(loc).Error; err != nil {
		return 0, storageError("insert", err)
	}
	return loc.ID, nil
}

// Query returns at most limit records, most recent ts first. An empty
// deviceID matches every device.
func (r *LocationRepository) Query(ctx context.Context, deviceID string, limit int) ([]models.Location, error) {
	q := r.db.WithContext(ctx).Order("ts DESC").Order("id DESC").Limit(limit)
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}

	locations := make([]models.Location, 0)
	if err := q.Find(&locations).Error; err != nil {
		return nil, storageError("query", err)
	}
	return locations, nil
}

func (r *LocationRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return storageError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

func storageError(op string, err error) error {
	metrics.StorageErrors.WithLabelValues(op).Inc()
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
