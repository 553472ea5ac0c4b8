package detection

import (
	"strconv"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

const (
	// DeauthFloodThreshold is the number of deauthentication frames tolerated per window.
	DeauthFloodThreshold = 10
	DeauthFloodWindow    = 60 * time.Second

	// Beacon intervals outside this range (time units) are treated as abnormal.
	minBeaconInterval = 20
	maxBeaconInterval = 1000

	// Two addresses reporting one identity closer than this are concurrent tracks.
	concurrentTrackWindow = 5 * time.Second
	// Distinct SSIDs from one BSSID before a beacon flood is assumed.
	beaconFloodSSIDs = 5
)

// lastNetwork returns the most recent network context in history.
func lastNetwork(history []domain.Sighting) *domain.NetworkContext {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Network != nil {
			return history[i].Network
		}
	}
	return nil
}

// NetworkStateDetector compares the carrying network against what the same
// identity was last seen on.
type NetworkStateDetector struct{}

func (d *NetworkStateDetector) Name() string { return "NetworkStateDetector" }

func (d *NetworkStateDetector) Detect(s domain.Sighting, history []domain.Sighting) []domain.Detection {
	var out []domain.Detection

	if n := s.Network; n != nil {
		if n.DeauthCount > DeauthFloodThreshold &&
			(n.DeauthWindow.IsZero() || s.Timestamp.Sub(n.DeauthWindow) <= DeauthFloodWindow) {
			out = append(out, domain.NewDetection(s, domain.ThreatDeauthFlood,
				"deauthentication flood on "+n.BSSID,
				0.9,
				evidence(strconv.Itoa(DeauthFloodThreshold), strconv.Itoa(n.DeauthCount))))
		}

		if n.BeaconInterval > 0 && (n.BeaconInterval < minBeaconInterval || n.BeaconInterval > maxBeaconInterval) {
			out = append(out, domain.NewDetection(s, domain.ThreatBeaconCadence,
				"beacon interval outside normal range",
				0.55,
				evidence("100", strconv.Itoa(n.BeaconInterval))))
		}

		if prev := lastNetwork(history); prev != nil {
			out = append(out, compareNetworks(s, *prev, *n)...)
		}
	}

	if det := concurrentTracks(s, history); det != nil {
		out = append(out, *det)
	}
	if det := beaconFlood(s, history); det != nil {
		out = append(out, *det)
	}
	return out
}

func compareNetworks(s domain.Sighting, prev, cur domain.NetworkContext) []domain.Detection {
	var out []domain.Detection

	sameSSID := prev.SSID != "" && prev.SSID == cur.SSID
	sameBSSID := prev.BSSID != "" && prev.BSSID == cur.BSSID

	if sameSSID && prev.BSSID != "" && cur.BSSID != "" && !sameBSSID {
		out = append(out, domain.NewDetection(s, domain.ThreatBSSIDChange,
			"network "+cur.SSID+" moved to a new BSSID",
			0.7,
			evidence(prev.BSSID, cur.BSSID)))
	}

	if sameSSID {
		before, after := domain.SecurityRank(prev.Security), domain.SecurityRank(cur.Security)
		if before >= 0 && after >= 0 && after < before {
			out = append(out, domain.NewDetection(s, domain.ThreatSecurityDowngrade,
				"network "+cur.SSID+" dropped from "+prev.Security+" to "+cur.Security,
				0.9,
				evidence(prev.Security, cur.Security)))
		}
	}

	if sameBSSID {
		if prev.Channel != 0 && cur.Channel != 0 && prev.Channel != cur.Channel {
			out = append(out, domain.NewDetection(s, domain.ThreatChannelChange,
				"access point "+cur.BSSID+" changed channel",
				0.5,
				evidence(strconv.Itoa(prev.Channel), strconv.Itoa(cur.Channel))))
		}
		if prev.Fingerprint != "" && cur.Fingerprint != "" && prev.Fingerprint != cur.Fingerprint {
			out = append(out, domain.NewDetection(s, domain.ThreatFingerprintDrift,
				"information element layout changed for "+cur.BSSID,
				0.6,
				evidence(prev.Fingerprint, cur.Fingerprint)))
		}
		if prev.BeaconInterval > 0 && cur.BeaconInterval > 0 && prev.BeaconInterval != cur.BeaconInterval {
			out = append(out, domain.NewDetection(s, domain.ThreatBeaconCadence,
				"beacon interval changed for "+cur.BSSID,
				0.55,
				evidence(strconv.Itoa(prev.BeaconInterval), strconv.Itoa(cur.BeaconInterval))))
		}
	}
	return out
}

// concurrentTracks flags an identity reported by a different address within a few seconds.
func concurrentTracks(s domain.Sighting, history []domain.Sighting) *domain.Detection {
	if s.IsSynthetic() {
		return nil
	}
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if s.Timestamp.Sub(h.Timestamp) > concurrentTrackWindow {
			break
		}
		if h.Address != "" && h.Address != s.Address {
			d := domain.NewDetection(s, domain.ThreatMultipleTracks,
				"identity broadcast from two addresses at once",
				0.65,
				evidence(h.Address, s.Address))
			return &d
		}
	}
	return nil
}

// beaconFlood flags one BSSID advertising many different network names.
func beaconFlood(s domain.Sighting, history []domain.Sighting) *domain.Detection {
	if s.Network == nil || s.Network.BSSID == "" {
		return nil
	}
	ssids := map[string]bool{s.Network.SSID: true}
	for _, h := range history {
		if h.Network != nil && h.Network.BSSID == s.Network.BSSID {
			ssids[h.Network.SSID] = true
		}
	}
	if len(ssids) <= beaconFloodSSIDs {
		return nil
	}
	d := domain.NewDetection(s, domain.ThreatBeaconFlood,
		"access point "+s.Network.BSSID+" advertises many network names",
		0.7,
		map[string]string{"distinct_ssids": strconv.Itoa(len(ssids))})
	return &d
}

func evidence(expected, observed string) map[string]string {
	return map[string]string{"expected": expected, "observed": observed}
}
