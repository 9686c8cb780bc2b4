package repository

import (
	"context"
	"strings"
	"time"

	criteriadomain "mailsweep-backend/internal/criteria/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a database-backed criteria repository.
func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ListEnabled(ctx context.Context) ([]*criteriadomain.Criterion, error) {
	var items []*criteriadomain.Criterion
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *gormRepository) List(ctx context.Context) ([]*criteriadomain.Criterion, error) {
	var items []*criteriadomain.Criterion
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&items).Error
	return items, err
}

func (r *gormRepository) Get(ctx context.Context, id string) (*criteriadomain.Criterion, error) {
	var item criteriadomain.Criterion
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *gormRepository) Append(ctx context.Context, text string) (*criteriadomain.Criterion, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil, gorm.ErrInvalidData
	}
	now := time.Now()
	item := &criteriadomain.Criterion{
		ID:        uuid.New().String(),
		Text:      cleaned,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *gormRepository) Update(ctx context.Context, id string, text *string, enabled *bool) (*criteriadomain.Criterion, error) {
	item, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if text != nil {
		cleaned := strings.TrimSpace(*text)
		if cleaned == "" {
			return nil, gorm.ErrInvalidData
		}
		item.Text = cleaned
	}
	if enabled != nil {
		item.Enabled = *enabled
	}
	item.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *gormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&criteriadomain.Criterion{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
