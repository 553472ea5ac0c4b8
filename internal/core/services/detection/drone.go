package detection

import (
	"fmt"
	"math"
	"strconv"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/geo"
)

const (
	// RSSIDeviationThreshold is the dB swing from the historical mean that counts as an anomaly.
	RSSIDeviationThreshold = 20.0
	minRSSISamples         = 3

	// MaxPlausibleSpeed bounds ground speed between two self-reported fixes (m/s).
	MaxPlausibleSpeed = 150.0
)

// SpoofDetector surfaces spoofing assessments attached upstream by the receiver.
type SpoofDetector struct{}

func (d *SpoofDetector) Name() string { return "SpoofDetector" }

func (d *SpoofDetector) Detect(s domain.Sighting, _ []domain.Sighting) []domain.Detection {
	if s.Spoof == nil || !s.Spoof.Suspected {
		return nil
	}
	ev := map[string]string{"upstream_confidence": strconv.FormatFloat(s.Spoof.Confidence, 'f', 2, 64)}
	if s.Spoof.Reason != "" {
		ev["reason"] = s.Spoof.Reason
	}
	return []domain.Detection{domain.NewDetection(s, domain.ThreatDroneSpoofing,
		"receiver flagged the broadcast as spoofed", s.Spoof.Confidence, ev)}
}

// RandomizedMACDetector flags locally administered transmitter addresses.
type RandomizedMACDetector struct{}

func (d *RandomizedMACDetector) Name() string { return "RandomizedMACDetector" }

func (d *RandomizedMACDetector) Detect(s domain.Sighting, _ []domain.Sighting) []domain.Detection {
	if !isLocallyAdministered(s.Address) {
		return nil
	}
	return []domain.Detection{domain.NewDetection(s, domain.ThreatMACRandomization,
		"transmitter uses a locally administered address",
		0.55,
		map[string]string{"address": s.Address})}
}

// RSSIAnomalyDetector flags signal strength far from the identity's recent mean.
type RSSIAnomalyDetector struct{}

func (d *RSSIAnomalyDetector) Name() string { return "RSSIAnomalyDetector" }

func (d *RSSIAnomalyDetector) Detect(s domain.Sighting, history []domain.Sighting) []domain.Detection {
	var sum float64
	var n int
	for _, h := range history {
		if h.RSSI != 0 {
			sum += float64(h.RSSI)
			n++
		}
	}
	if n < minRSSISamples {
		return nil
	}
	mean := sum / float64(n)
	dev := math.Abs(float64(s.RSSI) - mean)
	if dev <= RSSIDeviationThreshold {
		return nil
	}
	return []domain.Detection{domain.NewDetection(s, domain.ThreatRSSIAnomaly,
		fmt.Sprintf("signal deviates %.1f dB from recent mean", dev),
		0.6,
		map[string]string{
			"expected":  strconv.FormatFloat(mean, 'f', 1, 64),
			"observed":  strconv.Itoa(s.RSSI),
			"deviation": strconv.FormatFloat(dev, 'f', 1, 64),
		})}
}

// ProximityDetector flags transmitters received stronger than the threshold.
type ProximityDetector struct {
	Threshold int
	PathLoss  geo.PathLoss
}

func (d *ProximityDetector) Name() string { return "ProximityDetector" }

func (d *ProximityDetector) Detect(s domain.Sighting, _ []domain.Sighting) []domain.Detection {
	if s.RSSI <= d.Threshold {
		return nil
	}
	dist := d.PathLoss.Distance(s.RSSI)
	return []domain.Detection{domain.NewDetection(s, domain.ThreatProximity,
		fmt.Sprintf("transmitter within an estimated %.1f m", dist),
		0.75,
		map[string]string{
			"rssi":                 strconv.Itoa(s.RSSI),
			"threshold":            strconv.Itoa(d.Threshold),
			"estimated_distance_m": strconv.FormatFloat(dist, 'f', 1, 64),
		})}
}

// ImpossibleTravelDetector compares consecutive self-reported fixes.
type ImpossibleTravelDetector struct{}

func (d *ImpossibleTravelDetector) Name() string { return "ImpossibleTravelDetector" }

func (d *ImpossibleTravelDetector) Detect(s domain.Sighting, history []domain.Sighting) []domain.Detection {
	if s.Position == nil || s.Estimated {
		return nil
	}
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Position == nil || h.Estimated {
			continue
		}
		dt := s.Timestamp.Sub(h.Timestamp).Seconds()
		if dt <= 0 {
			return nil
		}
		meters := geo.Distance(
			geo.Location{Latitude: h.Position.Latitude, Longitude: h.Position.Longitude},
			geo.Location{Latitude: s.Position.Latitude, Longitude: s.Position.Longitude},
		)
		speed := meters / dt
		if speed <= MaxPlausibleSpeed {
			return nil
		}
		return []domain.Detection{domain.NewDetection(s, domain.ThreatImpossibleTravel,
			fmt.Sprintf("moved %.0f m in %.1f s", meters, dt),
			0.7,
			map[string]string{
				"expected": strconv.FormatFloat(MaxPlausibleSpeed, 'f', 0, 64),
				"observed": strconv.FormatFloat(speed, 'f', 1, 64),
			})}
	}
	return nil
}
