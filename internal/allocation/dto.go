package allocation

import (
	"github.com/google/uuid"

	"github.com/maplecart/inventory-backend/pkg/enums"
)

// AdjustField names the counter a manual adjustment targets.
type AdjustField string

const (
	AdjustFieldOnHand      AdjustField = "on_hand"
	AdjustFieldSafetyStock AdjustField = "safety_stock"
)

// IsValid reports whether the field is adjustable.
func (f AdjustField) IsValid() bool {
	return f == AdjustFieldOnHand || f == AdjustFieldSafetyStock
}

// ReservationInput captures a reservation, release or fulfillment request.
// OrderRef is the caller's order identifier; it keys the reservation's
// lifecycle in the ledger.
type ReservationInput struct {
	VariantID uuid.UUID
	OrderRef  string
	Quantity  int
	Actor     string
}

// AdjustStockInput captures a manual counter adjustment. Exactly one field is
// touched per call; Type selects between an absolute overwrite and a signed
// delta.
type AdjustStockInput struct {
	VariantID uuid.UUID
	Field     AdjustField
	Type      enums.AdjustmentType
	Value     int
	Actor     string
	Notes     string
}

// SetChannelBufferInput sets the units withheld from general availability for
// one sales channel.
type SetChannelBufferInput struct {
	VariantID uuid.UUID
	Channel   string
	Units     int
	Actor     string
}

// InitializeVariantInput creates the zero-initialized counter row when the
// catalog announces a new variant.
type InitializeVariantInput struct {
	VariantID         uuid.UUID
	SKU               string
	ProductName       string
	LowStockThreshold int
	Actor             string
}

// ImportLine is one line of an external marketplace order.
type ImportLine struct {
	ExternalSKU string
	Quantity    int
}

// ImportRequest is a full external order import batch.
type ImportRequest struct {
	Channel         string
	ExternalOrderID string
	Actor           string
	Lines           []ImportLine
}

// ImportLineResult reports the outcome of one import line.
type ImportLineResult struct {
	LineIndex   int                    `json:"line_index"`
	ExternalSKU string                 `json:"external_sku"`
	Status      enums.ImportLineStatus `json:"status"`
	VariantID   *uuid.UUID             `json:"variant_id,omitempty"`
	Anomaly     bool                   `json:"anomaly,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

// ImportReport summarizes an import batch, one result per line in input
// order.
type ImportReport struct {
	Channel         string             `json:"channel"`
	ExternalOrderID string             `json:"external_order_id"`
	Lines           []ImportLineResult `json:"lines"`
	Applied         int                `json:"applied"`
	AlreadyApplied  int                `json:"already_processed"`
	Unresolved      int                `json:"unresolved"`
	Failed          int                `json:"failed"`
}
