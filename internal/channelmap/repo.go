package channelmap

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maplecart/inventory-backend/pkg/db/models"
)

// Repository manages persistence for channel mappings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, mapping *models.ChannelMapping) error
	FindByChannelSKU(ctx context.Context, channel, externalSKU string) (*models.ChannelMapping, error)
	ListByChannel(ctx context.Context, channel string) ([]models.ChannelMapping, error)
	ListByVariant(ctx context.Context, variantID uuid.UUID) ([]models.ChannelMapping, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a channel mapping repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, mapping *models.ChannelMapping) error {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(mapping).Error
}

func (r *repository) FindByChannelSKU(ctx context.Context, channel, externalSKU string) (*models.ChannelMapping, error) {
	var mapping models.ChannelMapping
	err := r.db.WithContext(ctx).
		Where("channel = ? AND external_sku = ?", channel, externalSKU).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

func (r *repository) ListByChannel(ctx context.Context, channel string) ([]models.ChannelMapping, error) {
	var mappings []models.ChannelMapping
	if err := r.db.WithContext(ctx).
		Where("channel = ?", channel).
		Order("external_sku ASC").
		Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *repository) ListByVariant(ctx context.Context, variantID uuid.UUID) ([]models.ChannelMapping, error) {
	var mappings []models.ChannelMapping
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("channel ASC").
		Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.ChannelMapping{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
