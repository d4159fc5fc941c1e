package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/maplecart/inventory-backend/pkg/db/types"
)

// StockCounter holds the per-variant stock counters. The variant itself is
// owned by the catalog service; this row is created zero-initialized when the
// catalog announces a new variant and soft-deleted when it is archived.
// Only the allocation engine writes these columns.
type StockCounter struct {
	VariantID         uuid.UUID              `gorm:"column:variant_id;type:uuid;primaryKey"`
	SKU               string                 `gorm:"column:sku;not null"`
	ProductName       string                 `gorm:"column:product_name;not null;default:''"`
	OnHand            int                    `gorm:"column:on_hand;not null;default:0"`
	Allocated         int                    `gorm:"column:allocated;not null;default:0"`
	SafetyStock       int                    `gorm:"column:safety_stock;not null;default:0"`
	LowStockThreshold int                    `gorm:"column:low_stock_threshold;not null;default:0"`
	ChannelBuffers    dbtypes.ChannelBuffers `gorm:"column:channel_buffers;type:jsonb;not null;default:'{}'"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	ArchivedAt        gorm.DeletedAt         `gorm:"column:archived_at;index"`
}

// Available derives the sellable quantity. Never persisted, so it cannot
// drift from the counters that produce it.
func (c StockCounter) Available() int {
	available := c.OnHand - c.Allocated - c.SafetyStock - c.ChannelBuffers.Total()
	if available < 0 {
		return 0
	}
	return available
}

// IsLowStock derives the low-stock flag from the current counters.
func (c StockCounter) IsLowStock() bool {
	return c.Available() < c.LowStockThreshold
}
