package enums

import "fmt"

// AdjustmentType distinguishes absolute overwrites from signed deltas in
// manual stock adjustments.
type AdjustmentType string

const (
	AdjustmentTypeSet    AdjustmentType = "set"
	AdjustmentTypeChange AdjustmentType = "change"
)

var validAdjustmentTypes = []AdjustmentType{
	AdjustmentTypeSet,
	AdjustmentTypeChange,
}

// IsValid reports whether the value matches the canonical adjustment type enum.
func (a AdjustmentType) IsValid() bool {
	for _, candidate := range validAdjustmentTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAdjustmentType converts raw input into AdjustmentType.
func ParseAdjustmentType(value string) (AdjustmentType, error) {
	for _, candidate := range validAdjustmentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid adjustment type %q", value)
}
