package detection

import (
	"strings"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// normalizeOUI returns the "XX:XX:XX" prefix of a MAC-like string, or "" when it has fewer than six hex digits.
func normalizeOUI(addr string) string {
	var hex []byte
	for i := 0; i < len(addr) && len(hex) < 6; i++ {
		c := addr[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F':
			hex = append(hex, c)
		case c >= 'a' && c <= 'f':
			hex = append(hex, c-'a'+'A')
		case c == ':' || c == '-' || c == '.':
		default:
			return ""
		}
	}
	if len(hex) < 6 {
		return ""
	}
	return string(hex[0:2]) + ":" + string(hex[2:4]) + ":" + string(hex[4:6])
}

// OUIDetector matches the address prefix against known vendor tables.
type OUIDetector struct {
	tables *Tables
}

func (d *OUIDetector) Name() string { return "OUIDetector" }

func (d *OUIDetector) Detect(s domain.Sighting, _ []domain.Sighting) []domain.Detection {
	oui := normalizeOUI(s.Address)
	if oui == "" {
		return nil
	}

	if e, ok := d.tables.OUIs[oui]; ok {
		return []domain.Detection{domain.NewDetection(s, e.Threat,
			"address prefix registered to "+e.Vendor,
			ConfidenceOUIExact,
			map[string]string{"oui": oui, "vendor": e.Vendor})}
	}

	if t, ok := d.tables.SuspiciousPrefixes[oui]; ok {
		return []domain.Detection{domain.NewDetection(s, t,
			"address prefix "+oui+" has no registered owner",
			ConfidenceOUISuspicious,
			map[string]string{"oui": oui})}
	}

	// Unregistered universally administered prefixes only count when the
	// vendor lookup upstream also came back empty.
	if s.Vendor == "" && !isLocallyAdministered(oui) && strings.HasPrefix(oui, "00:00:") {
		return []domain.Detection{domain.NewDetection(s, domain.ThreatSuspiciousOUI,
			"address prefix "+oui+" has no registered owner",
			ConfidenceOUISuspicious,
			map[string]string{"oui": oui})}
	}
	return nil
}

// isLocallyAdministered checks the second hex digit of the first octet: 2, 6, A and E
// have the locally administered bit set.
func isLocallyAdministered(addr string) bool {
	if len(addr) < 2 {
		return false
	}
	switch addr[1] {
	case '2', '6', 'A', 'E', 'a', 'e':
		return true
	}
	return false
}
