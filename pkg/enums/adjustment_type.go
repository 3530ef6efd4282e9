package enums

import "fmt"

// AdjustmentType classifies a manual adjustment line.
type AdjustmentType string

const (
	AdjustmentTypeCredit     AdjustmentType = "credit"
	AdjustmentTypeDebit      AdjustmentType = "debit"
	AdjustmentTypeBonus      AdjustmentType = "bonus"
	AdjustmentTypeCorrection AdjustmentType = "correction"
	AdjustmentTypeRefund     AdjustmentType = "refund"
)

var validAdjustmentTypes = []AdjustmentType{
	AdjustmentTypeCredit,
	AdjustmentTypeDebit,
	AdjustmentTypeBonus,
	AdjustmentTypeCorrection,
	AdjustmentTypeRefund,
}

// IsValid reports whether the value matches the canonical adjustment type enum.
func (t AdjustmentType) IsValid() bool {
	for _, candidate := range validAdjustmentTypes {
		if candidate == t {
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
