package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/maplecart/inventory-backend/pkg/enums"
)

// StockLedgerEntry records a single immutable stock mutation. Entries are
// never updated or deleted; replaying them from zero reproduces the variant's
// counters exactly.
type StockLedgerEntry struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VariantID            uuid.UUID          `gorm:"column:variant_id;type:uuid;not null;index"`
	DeltaOnHand          int                `gorm:"column:delta_on_hand;not null;default:0"`
	DeltaAllocated       int                `gorm:"column:delta_allocated;not null;default:0"`
	DeltaSafetyStock     int                `gorm:"column:delta_safety_stock;not null;default:0"`
	ResultingOnHand      int                `gorm:"column:resulting_on_hand;not null"`
	ResultingAllocated   int                `gorm:"column:resulting_allocated;not null"`
	ResultingSafetyStock int                `gorm:"column:resulting_safety_stock;not null"`
	Reason               enums.LedgerReason `gorm:"column:reason;type:ledger_reason_enum;not null"`
	Actor                string             `gorm:"column:actor;not null"`
	Channel              *string            `gorm:"column:channel"`
	ExternalReference    *string            `gorm:"column:external_reference;index"`
	Notes                *string            `gorm:"column:notes"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
}
