package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maplecart/inventory-backend/pkg/db/models"
	"github.com/maplecart/inventory-backend/pkg/enums"
	"github.com/maplecart/inventory-backend/pkg/pagination"
)

// Repository manages persistence for stock ledger entries. Entries are
// append-only: there is no update or delete path.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.StockLedgerEntry) error
	ListByVariant(ctx context.Context, variantID uuid.UUID, page pagination.Params) ([]models.StockLedgerEntry, error)
	ListByVariantAsc(ctx context.Context, variantID uuid.UUID) ([]models.StockLedgerEntry, error)
	FindByExternalReference(ctx context.Context, variantID uuid.UUID, externalRef string) ([]models.StockLedgerEntry, error)
	HasTerminalOrderEntry(ctx context.Context, variantID uuid.UUID, orderRef string) (bool, error)
	HasReservationEntry(ctx context.Context, variantID uuid.UUID, orderRef string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.StockLedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByVariant returns entries newest first for audit views.
func (r *repository) ListByVariant(ctx context.Context, variantID uuid.UUID, page pagination.Params) ([]models.StockLedgerEntry, error) {
	page = pagination.Normalize(page)

	var entries []models.StockLedgerEntry
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByVariantAsc returns the full history oldest first, the order a replay
// needs.
func (r *repository) ListByVariantAsc(ctx context.Context, variantID uuid.UUID) ([]models.StockLedgerEntry, error) {
	var entries []models.StockLedgerEntry
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) FindByExternalReference(ctx context.Context, variantID uuid.UUID, externalRef string) ([]models.StockLedgerEntry, error) {
	var entries []models.StockLedgerEntry
	if err := r.db.WithContext(ctx).
		Where("variant_id = ? AND external_reference = ?", variantID, externalRef).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// HasTerminalOrderEntry reports whether the order_ref already has a released
// or fulfilled entry for the variant. A terminal entry makes further release
// or fulfill calls no-ops.
func (r *repository) HasTerminalOrderEntry(ctx context.Context, variantID uuid.UUID, orderRef string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StockLedgerEntry{}).
		Where("variant_id = ? AND external_reference = ?", variantID, orderRef).
		Where("reason IN ?", []enums.LedgerReason{
			enums.LedgerReasonOrderReleased,
			enums.LedgerReasonOrderFulfilled,
		}).
		Count(&count).Error
	return count > 0, err
}

// HasReservationEntry reports whether the order_ref ever reserved the variant.
func (r *repository) HasReservationEntry(ctx context.Context, variantID uuid.UUID, orderRef string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StockLedgerEntry{}).
		Where("variant_id = ? AND external_reference = ? AND reason = ?",
			variantID, orderRef, enums.LedgerReasonOrderReserved).
		Count(&count).Error
	return count > 0, err
}
