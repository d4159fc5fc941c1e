package enums

import "fmt"

// LedgerReason maps to the ledger_reason_enum enum in Postgres.
type LedgerReason string

const (
	LedgerReasonManualAdjustment    LedgerReason = "manual_adjustment"
	LedgerReasonOrderReserved       LedgerReason = "order_reserved"
	LedgerReasonOrderReleased       LedgerReason = "order_released"
	LedgerReasonOrderFulfilled      LedgerReason = "order_fulfilled"
	LedgerReasonExternalImport      LedgerReason = "external_import"
	LedgerReasonChannelBufferChange LedgerReason = "channel_buffer_change"
)

var validLedgerReasons = []LedgerReason{
	LedgerReasonManualAdjustment,
	LedgerReasonOrderReserved,
	LedgerReasonOrderReleased,
	LedgerReasonOrderFulfilled,
	LedgerReasonExternalImport,
	LedgerReasonChannelBufferChange,
}

// IsValid reports whether the value matches the canonical ledger reason enum.
func (r LedgerReason) IsValid() bool {
	for _, candidate := range validLedgerReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsOrderTerminal reports whether the reason closes an order_ref's
// reservation. A terminal entry makes later release/fulfill calls for the
// same order_ref no-ops.
func (r LedgerReason) IsOrderTerminal() bool {
	return r == LedgerReasonOrderReleased || r == LedgerReasonOrderFulfilled
}

// ParseLedgerReason converts raw input into LedgerReason.
func ParseLedgerReason(value string) (LedgerReason, error) {
	for _, candidate := range validLedgerReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger reason %q", value)
}
