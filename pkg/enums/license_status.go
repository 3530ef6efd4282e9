package enums

import "fmt"

// LicenseStatus maps to the license_status enum in Postgres. Licensing
// lifecycle is owned by the licensing system; the royalty engine only reads it.
type LicenseStatus string

const (
	LicenseStatusActive     LicenseStatus = "active"
	LicenseStatusSuspended  LicenseStatus = "suspended"
	LicenseStatusExpired    LicenseStatus = "expired"
	LicenseStatusTerminated LicenseStatus = "terminated"
)

var validLicenseStatuses = []LicenseStatus{
	LicenseStatusActive,
	LicenseStatusSuspended,
	LicenseStatusExpired,
	LicenseStatusTerminated,
}

// IsValid reports whether the value matches the canonical license status enum.
func (s LicenseStatus) IsValid() bool {
	for _, candidate := range validLicenseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLicenseStatus converts raw input into LicenseStatus.
func ParseLicenseStatus(value string) (LicenseStatus, error) {
	for _, candidate := range validLicenseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid license status %q", value)
}
