package detection

import (
	"strings"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// textFields returns the free text a transmitter controls, normalized, keyed by field name.
func textFields(s domain.Sighting) map[string]string {
	fields := map[string]string{
		"identity":    normalizeToken(s.Identity),
		"self_id":     normalizeToken(s.SelfID),
		"operator_id": normalizeToken(s.OperatorID),
		"vendor":      normalizeToken(s.Vendor),
	}
	if s.Network != nil {
		fields["ssid"] = normalizeToken(s.Network.SSID)
	}
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}
	return fields
}

// KeywordDetector flags attack platforms, implants and embedded boards by name.
type KeywordDetector struct {
	tables *Tables
}

func (d *KeywordDetector) Name() string { return "KeywordDetector" }

func (d *KeywordDetector) Detect(s domain.Sighting, _ []domain.Sighting) []domain.Detection {
	fields := textFields(s)
	if len(fields) == 0 {
		return nil
	}

	var out []domain.Detection
	seen := make(map[domain.ThreatType]bool)
	for _, kw := range d.tables.Keywords {
		if seen[kw.Threat] {
			continue
		}
		for _, name := range sortedKeys(fields) {
			if !strings.Contains(fields[name], kw.Token) {
				continue
			}
			seen[kw.Threat] = true
			out = append(out, domain.NewDetection(s, kw.Threat,
				"keyword "+kw.Token+" found in "+name,
				kw.Confidence,
				map[string]string{"keyword": kw.Token, "field": name}))
			break
		}
	}
	return out
}

// KnockoffDetector flags units naming a brand their hardware does not belong to,
// cloned serial numbers and vendors that change under one identity.
type KnockoffDetector struct {
	tables *Tables
}

func (d *KnockoffDetector) Name() string { return "KnockoffDetector" }

func (d *KnockoffDetector) Detect(s domain.Sighting, history []domain.Sighting) []domain.Detection {
	var out []domain.Detection

	vendor := strings.ToLower(s.Vendor)
	if vendor != "" {
		fields := textFields(s)
		delete(fields, "vendor")
		for _, brand := range sortedKeys(d.tables.KnockoffBrands) {
			kb := d.tables.KnockoffBrands[brand]
			if strings.Contains(vendor, kb.vendor) {
				continue
			}
			for _, name := range sortedKeys(fields) {
				if strings.Contains(fields[name], brand) {
					out = append(out, domain.NewDetection(s, kb.threat,
						"claims "+brand+" but hardware resolves to "+s.Vendor,
						0.8,
						map[string]string{"expected": kb.vendor, "observed": s.Vendor, "field": name}))
					break
				}
			}
		}
	}

	if s.BasicID != nil && d.tables.ClonedSerials[strings.ToUpper(s.BasicID.ID)] {
		out = append(out, domain.NewDetection(s, domain.ThreatCloneSerial,
			"serial number is a known cloned or default value",
			0.8,
			map[string]string{"serial": s.BasicID.ID}))
	}

	if s.Vendor != "" && !s.IsSynthetic() {
		for i := len(history) - 1; i >= 0; i-- {
			prev := history[i].Vendor
			if prev == "" {
				continue
			}
			if !strings.EqualFold(prev, s.Vendor) {
				out = append(out, domain.NewDetection(s, domain.ThreatVendorMismatch,
					"hardware vendor changed for the same identity",
					0.65,
					map[string]string{"expected": prev, "observed": s.Vendor}))
			}
			break
		}
	}

	return out
}
