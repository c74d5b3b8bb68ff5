package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for file data access.
type Repository interface {
	Create(ctx context.Context, f *File) error
	GetByID(ctx context.Context, id uuid.UUID) (*File, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*File, error)
	// UpdateStatusFrom applies updates only if the current status is one of
	// from. Returns false when the precondition did not hold, so racing
	// workers lose cleanly instead of overwriting each other.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from []Status, updates map[string]interface{}) (bool, error)
	// ListExpired returns files whose TTL elapsed but are not yet deleted.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*File, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new file repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, f *File) error {
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*File, error) {
	var f File
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &f, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*File, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var files []*File
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status != ?", ownerID, StatusDeleted).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (r *repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from []Status, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&File{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update file status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*File, error) {
	if limit <= 0 {
		limit = 200
	}
	var files []*File
	err := r.db.WithContext(ctx).
		Where("expires_at < ? AND status != ?", now, StatusDeleted).
		Order("expires_at ASC").
		Limit(limit).
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list expired files: %w", err)
	}
	return files, nil
}
