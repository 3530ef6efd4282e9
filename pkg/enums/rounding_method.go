package enums

import "fmt"

// RoundingMethod selects how fractional cents are rounded. It is a
// process-wide configuration constant, never chosen per call.
type RoundingMethod string

const (
	RoundingMethodBankers  RoundingMethod = "bankers"
	RoundingMethodStandard RoundingMethod = "standard"
)

var validRoundingMethods = []RoundingMethod{
	RoundingMethodBankers,
	RoundingMethodStandard,
}

// IsValid reports whether the value matches a supported rounding method.
func (m RoundingMethod) IsValid() bool {
	for _, candidate := range validRoundingMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseRoundingMethod converts raw input into RoundingMethod.
func ParseRoundingMethod(value string) (RoundingMethod, error) {
	for _, candidate := range validRoundingMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rounding method %q", value)
}
