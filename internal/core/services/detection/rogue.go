package detection

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// RogueAPDetector inspects the carrying network name for impersonation patterns.
type RogueAPDetector struct {
	tables *Tables
}

func (d *RogueAPDetector) Name() string { return "RogueAPDetector" }

func (d *RogueAPDetector) Detect(s domain.Sighting, _ []domain.Sighting) []domain.Detection {
	if s.Network == nil || s.Network.SSID == "" {
		return nil
	}
	ssid := s.Network.SSID
	var out []domain.Detection

	if strings.ContainsRune(ssid, 0) {
		out = append(out, domain.NewDetection(s, domain.ThreatSSIDNullByte,
			"network name contains a NUL byte",
			ConfidenceSSIDEncoding,
			map[string]string{"ssid": fmt.Sprintf("%q", ssid)}))
	} else if pos := nonPrintable(ssid); pos >= 0 {
		out = append(out, domain.NewDetection(s, domain.ThreatSSIDNonPrintable,
			"network name contains non printable characters",
			ConfidenceSSIDEncoding,
			map[string]string{"ssid": fmt.Sprintf("%q", ssid), "offset": fmt.Sprint(pos)}))
	}

	if r, ok := homoglyph(ssid); ok {
		out = append(out, domain.NewDetection(s, domain.ThreatSSIDHomoglyph,
			"network name mixes scripts to imitate another name",
			ConfidenceSSIDEncoding,
			map[string]string{"ssid": ssid, "rune": fmt.Sprintf("%U", r)}))
	}

	norm := normalizeToken(ssid)
	for _, rogue := range d.tables.RogueSSIDs {
		if norm == rogue {
			out = append(out, domain.NewDetection(s, domain.ThreatRogueSSID,
				"network name is commonly used by rogue access points",
				ConfidenceRogueSSID,
				map[string]string{"ssid": ssid}))
			break
		}
	}

	seen := make(map[domain.ThreatType]bool)
	for _, kw := range d.tables.RogueKeywords {
		if seen[kw.Threat] || !strings.Contains(norm, kw.Token) {
			continue
		}
		seen[kw.Threat] = true
		out = append(out, domain.NewDetection(s, kw.Threat,
			"network name contains "+kw.Token,
			kw.Confidence,
			map[string]string{"ssid": ssid, "keyword": kw.Token}))
	}
	return out
}

// nonPrintable returns the byte offset of the first unprintable rune or invalid
// UTF-8 sequence, or -1.
func nonPrintable(s string) int {
	for i, r := range s {
		if r == utf8.RuneError || (!unicode.IsPrint(r) && r != 0) {
			return i
		}
	}
	return -1
}

// homoglyph reports the first Cyrillic or Greek rune in a name that also uses
// Latin letters, or a zero width character anywhere.
func homoglyph(s string) (rune, bool) {
	var latin bool
	var foreign rune
	for _, r := range s {
		switch {
		case r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\ufeff':
			return r, true
		case r < utf8.RuneSelf && unicode.IsLetter(r):
			latin = true
		case foreign == 0 && unicode.In(r, unicode.Cyrillic, unicode.Greek):
			foreign = r
		}
	}
	return foreign, latin && foreign != 0
}
