package allocation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maplecart/inventory-backend/pkg/db/models"
	"github.com/maplecart/inventory-backend/pkg/pagination"
)

// Repository manages persistence for stock counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, counter *models.StockCounter) error
	Get(ctx context.Context, variantID uuid.UUID) (*models.StockCounter, error)
	Save(ctx context.Context, counter *models.StockCounter) error
	Archive(ctx context.Context, variantID uuid.UUID) (bool, error)
	List(ctx context.Context, page pagination.Params) ([]models.StockCounter, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock counter repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, counter *models.StockCounter) error {
	return r.db.WithContext(ctx).Create(counter).Error
}

// Get returns nil when the variant has no active counter row. Archived rows
// are invisible here; gorm's soft delete filter excludes them.
func (r *repository) Get(ctx context.Context, variantID uuid.UUID) (*models.StockCounter, error) {
	var counter models.StockCounter
	err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

func (r *repository) Save(ctx context.Context, counter *models.StockCounter) error {
	return r.db.WithContext(ctx).Save(counter).Error
}

func (r *repository) Archive(ctx context.Context, variantID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Delete(&models.StockCounter{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, page pagination.Params) ([]models.StockCounter, error) {
	page = pagination.Normalize(page)

	var counters []models.StockCounter
	if err := r.db.WithContext(ctx).
		Order("sku ASC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&counters).Error; err != nil {
		return nil, err
	}
	return counters, nil
}
