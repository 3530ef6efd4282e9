package enums

import "fmt"

// LineKind maps to the royalty_line_kind enum in Postgres. It replaces the
// sentinel license-id strings the legacy exports used for non-license rows.
type LineKind string

const (
	LineKindLicense            LineKind = "license"
	LineKindCarryover          LineKind = "carryover"
	LineKindThresholdNote      LineKind = "threshold_note"
	LineKindManualAdjustment   LineKind = "manual_adjustment"
	LineKindAdjustmentReversal LineKind = "adjustment_reversal"
	LineKindDisputeResolution  LineKind = "dispute_resolution"
)

var validLineKinds = []LineKind{
	LineKindLicense,
	LineKindCarryover,
	LineKindThresholdNote,
	LineKindManualAdjustment,
	LineKindAdjustmentReversal,
	LineKindDisputeResolution,
}

// IsValid reports whether the value matches the canonical line kind enum.
func (k LineKind) IsValid() bool {
	for _, candidate := range validLineKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseLineKind converts raw input into LineKind.
func ParseLineKind(value string) (LineKind, error) {
	for _, candidate := range validLineKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid line kind %q", value)
}
