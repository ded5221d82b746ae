package registry

import (
	"fmt"
	"regexp"
)

const (
	// MaxNameLength is the maximum length for a service name. Names double
	// as file names in the registry root, so they stay DNS-label sized.
	MaxNameLength = 63
)

// NamePattern is the regex pattern for valid service names: lowercase
// alphanumeric with hyphens allowed, but not at the start or end.
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks if a service name is valid.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("service name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}
	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid service name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}
	return nil
}
