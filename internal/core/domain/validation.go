package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation Helpers

var (
	macRegex       = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
	interfaceRegex = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)
	identityRegex  = regexp.MustCompile(`^[A-Z0-9]{6,}$`)
	allZeroRegex   = regexp.MustCompile(`^0+$`)
	numericPrefix  = regexp.MustCompile(`^[0-9]+[\s:\-_.]*`)
)

// IsValidMAC checks if the string is a valid MAC address
func IsValidMAC(mac string) bool {
	return macRegex.MatchString(mac)
}

// IsValidInterface checks if the string is a safe interface name (alphanumeric + - _)
func IsValidInterface(iface string) bool {
	// Length check (Linux interfaces are usually short, IFNAMSIZ is 16)
	if len(iface) == 0 || len(iface) > 16 {
		return false
	}
	return interfaceRegex.MatchString(iface)
}

// ValidateIdentity accepts uppercase alphanumeric candidates of at least six
// characters that are not all zero digits.
func ValidateIdentity(candidate string) error {
	if !identityRegex.MatchString(candidate) || allZeroRegex.MatchString(candidate) {
		return fmt.Errorf("%q: %w", candidate, ErrInvalidIdentity)
	}
	return nil
}

// SelfIDCandidate strips a leading numeric prefix from Self-ID text before it is
// tested as an identity, e.g. "01 SKY4471X" becomes "SKY4471X".
func SelfIDCandidate(text string) string {
	text = strings.TrimSpace(text)
	stripped := numericPrefix.ReplaceAllString(text, "")
	return strings.TrimSpace(stripped)
}
