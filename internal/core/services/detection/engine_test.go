package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

var baseTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func cleanSighting() domain.Sighting {
	return domain.Sighting{
		Identity:  "SERIAL123456",
		Address:   "00:11:22:33:44:55",
		RSSI:      -80,
		Timestamp: baseTime,
		Provenance: map[domain.MessageKind]bool{
			domain.KindBasicID:        true,
			domain.KindLocationVector: true,
		},
	}
}

func find(ds []domain.Detection, t domain.ThreatType) (domain.Detection, bool) {
	for _, d := range ds {
		if d.Type == t {
			return d, true
		}
	}
	return domain.Detection{}, false
}

func TestScanCleanSighting(t *testing.T) {
	e := NewEngine(Options{})
	assert.Empty(t, e.Scan(cleanSighting(), nil))
}

func TestOUIExactMatch(t *testing.T) {
	e := NewEngine(Options{})
	s := cleanSighting()
	s.Address = "00:13:37:12:34:56"

	ds := e.Scan(s, nil)
	d, ok := find(ds, domain.ThreatKnownAttackOUI)
	require.True(t, ok)
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	assert.Equal(t, "00:13:37", d.Evidence["oui"])
	assert.Equal(t, "Hak5", d.Evidence["vendor"])
	assert.Equal(t, "SERIAL123456", d.Subject)
	assert.Equal(t, s.Address, d.Address)
	assert.NotEmpty(t, d.ID)
}

func TestSuspiciousPrefix(t *testing.T) {
	e := NewEngine(Options{})
	s := cleanSighting()
	s.Address = "00:00:00:11:22:33"

	d, ok := find(e.Scan(s, nil), domain.ThreatNullOUI)
	require.True(t, ok)
	assert.InDelta(t, 0.6, d.Confidence, 1e-9)
}

func TestFingerprintMatch(t *testing.T) {
	s := cleanSighting()
	tables := BuildTables([]FingerprintSeed{{
		Address: s.Address,
		Kinds:   []domain.MessageKind{domain.KindLocationVector, domain.KindBasicID},
		Threat:  domain.ThreatHackRF,
	}})
	e := NewEngine(Options{Tables: tables})

	d, ok := find(e.Scan(s, nil), domain.ThreatFingerprintHit)
	require.True(t, ok)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
	assert.Equal(t, string(domain.ThreatHackRF), d.Evidence["platform"])

	s.AuthType = "uas_id_signature"
	_, ok = find(e.Scan(s, nil), domain.ThreatFingerprintHit)
	assert.False(t, ok, "auth type is part of the fingerprint")
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("aa:bb:cc:dd:ee:ff", []domain.MessageKind{domain.KindSystem, domain.KindBasicID}, "NONE")
	b := Fingerprint("AA:BB:CC:DD:EE:FF", []domain.MessageKind{domain.KindBasicID, domain.KindSystem}, "none")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	c := Fingerprint("AA:BB:CC:DD:EE:FF", []domain.MessageKind{domain.KindBasicID}, "none")
	assert.NotEqual(t, a, c)
}

func TestKeywordDetector(t *testing.T) {
	e := NewEngine(Options{})

	s := cleanSighting()
	s.SelfID = "Flipper test flight"
	d, ok := find(e.Scan(s, nil), domain.ThreatFlipperZero)
	require.True(t, ok)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.Equal(t, "self_id", d.Evidence["field"])

	s = cleanSighting()
	s.Network = &domain.NetworkContext{SSID: "bash-bunny"}
	d, ok = find(e.Scan(s, nil), domain.ThreatBashBunny)
	require.True(t, ok)
	assert.Equal(t, "ssid", d.Evidence["field"])
	assert.Equal(t, "bash-bunny", d.NetworkName)
	assert.True(t, d.Type.IsPhysicalImplant())
}

func TestKnockoffDetector(t *testing.T) {
	e := NewEngine(Options{})

	s := cleanSighting()
	s.Vendor = "Espressif Inc."
	s.SelfID = "DJI Mavic 3"
	d, ok := find(e.Scan(s, nil), domain.ThreatKnockoffDJI)
	require.True(t, ok)
	assert.Equal(t, "Espressif Inc.", d.Evidence["observed"])

	s.Vendor = "SZ DJI Technology Co."
	_, ok = find(e.Scan(s, nil), domain.ThreatKnockoffDJI)
	assert.False(t, ok)

	s = cleanSighting()
	s.BasicID = &domain.BasicID{ID: "TESTSERIAL0001"}
	_, ok = find(e.Scan(s, nil), domain.ThreatCloneSerial)
	assert.True(t, ok)

	prev := cleanSighting()
	prev.Vendor = "SZ DJI Technology Co."
	prev.Timestamp = baseTime.Add(-time.Minute)
	s = cleanSighting()
	s.Vendor = "Espressif Inc."
	d, ok = find(e.Scan(s, []domain.Sighting{prev}), domain.ThreatVendorMismatch)
	require.True(t, ok)
	assert.Equal(t, "SZ DJI Technology Co.", d.Evidence["expected"])
}

func TestNetworkStateViolations(t *testing.T) {
	e := NewEngine(Options{})

	prev := cleanSighting()
	prev.Timestamp = baseTime.Add(-time.Minute)
	prev.Network = &domain.NetworkContext{
		SSID: "CorpNet", BSSID: "AA:BB:CC:00:00:01", Channel: 6, Security: "WPA2", BeaconInterval: 100,
	}

	s := cleanSighting()
	s.Network = &domain.NetworkContext{
		SSID: "CorpNet", BSSID: "AA:BB:CC:00:00:02", Channel: 6, Security: "OPEN", BeaconInterval: 100,
	}

	ds := e.Scan(s, []domain.Sighting{prev})

	d, ok := find(ds, domain.ThreatBSSIDChange)
	require.True(t, ok)
	assert.InDelta(t, 0.7, d.Confidence, 1e-9)
	assert.Equal(t, "AA:BB:CC:00:00:01", d.Evidence["expected"])
	assert.Equal(t, "AA:BB:CC:00:00:02", d.Evidence["observed"])

	d, ok = find(ds, domain.ThreatSecurityDowngrade)
	require.True(t, ok)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.Equal(t, "WPA2", d.Evidence["expected"])
	assert.Equal(t, "OPEN", d.Evidence["observed"])

	_, ok = find(ds, domain.ThreatChannelChange)
	assert.False(t, ok, "channel compared per BSSID only")
}

func TestChannelAndFingerprintDrift(t *testing.T) {
	e := NewEngine(Options{})

	prev := cleanSighting()
	prev.Timestamp = baseTime.Add(-time.Minute)
	prev.Network = &domain.NetworkContext{SSID: "CorpNet", BSSID: "AA:BB:CC:00:00:01", Channel: 6, Fingerprint: "aa11"}

	s := cleanSighting()
	s.Network = &domain.NetworkContext{SSID: "CorpNet", BSSID: "AA:BB:CC:00:00:01", Channel: 11, Fingerprint: "bb22"}

	ds := e.Scan(s, []domain.Sighting{prev})
	d, ok := find(ds, domain.ThreatChannelChange)
	require.True(t, ok)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
	assert.Equal(t, "6", d.Evidence["expected"])
	assert.Equal(t, "11", d.Evidence["observed"])

	d, ok = find(ds, domain.ThreatFingerprintDrift)
	require.True(t, ok)
	assert.InDelta(t, 0.6, d.Confidence, 1e-9)
}

func TestDeauthFlood(t *testing.T) {
	e := NewEngine(Options{})

	s := cleanSighting()
	s.Network = &domain.NetworkContext{BSSID: "AA:BB:CC:00:00:01", DeauthCount: 11, DeauthWindow: baseTime.Add(-30 * time.Second)}
	d, ok := find(e.Scan(s, nil), domain.ThreatDeauthFlood)
	require.True(t, ok)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.Equal(t, "11", d.Evidence["observed"])
	assert.True(t, d.Type.IsNetworkDisruption())

	s.Network.DeauthCount = 10
	_, ok = find(e.Scan(s, nil), domain.ThreatDeauthFlood)
	assert.False(t, ok)
}

func TestMultipleTracks(t *testing.T) {
	e := NewEngine(Options{})

	prev := cleanSighting()
	prev.Address = "00:11:22:33:44:66"
	prev.Timestamp = baseTime.Add(-time.Second)

	d, ok := find(e.Scan(cleanSighting(), []domain.Sighting{prev}), domain.ThreatMultipleTracks)
	require.True(t, ok)
	assert.InDelta(t, 0.65, d.Confidence, 1e-9)

	prev.Timestamp = baseTime.Add(-time.Minute)
	_, ok = find(e.Scan(cleanSighting(), []domain.Sighting{prev}), domain.ThreatMultipleTracks)
	assert.False(t, ok)
}

func TestRogueAPPatterns(t *testing.T) {
	e := NewEngine(Options{})

	cases := map[string]struct {
		ssid string
		want domain.ThreatType
		conf float64
	}{
		"rogue name":    {ssid: "Free WiFi", want: domain.ThreatRogueSSID, conf: 0.75},
		"nul byte":      {ssid: "Corp\x00Net", want: domain.ThreatSSIDNullByte, conf: 0.8},
		"non printable": {ssid: "Corp\x07Net", want: domain.ThreatSSIDNonPrintable, conf: 0.8},
		"homoglyph":     {ssid: "C\u043erpNet", want: domain.ThreatSSIDHomoglyph, conf: 0.8},
		"karma":         {ssid: "karma-trap", want: domain.ThreatKarma, conf: 0.7},
		"captive":       {ssid: "Hotel Captive Login", want: domain.ThreatCaptivePortal, conf: 0.7},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := cleanSighting()
			s.Network = &domain.NetworkContext{SSID: tc.ssid}
			d, ok := find(e.Scan(s, nil), tc.want)
			require.True(t, ok)
			assert.InDelta(t, tc.conf, d.Confidence, 1e-9)
		})
	}
}

func TestDroneDetectors(t *testing.T) {
	e := NewEngine(Options{})

	t.Run("spoof flag", func(t *testing.T) {
		s := cleanSighting()
		s.Spoof = &domain.SpoofAssessment{Suspected: true, Confidence: 0.92, Reason: "gps jump"}
		d, ok := find(e.Scan(s, nil), domain.ThreatDroneSpoofing)
		require.True(t, ok)
		assert.InDelta(t, 0.92, d.Confidence, 1e-9)
		assert.Equal(t, "gps jump", d.Evidence["reason"])
	})

	t.Run("randomized address", func(t *testing.T) {
		for _, addr := range []string{"02:11:22:33:44:55", "0E:11:22:33:44:55", "DA:11:22:33:44:55"} {
			s := cleanSighting()
			s.Address = addr
			d, ok := find(e.Scan(s, nil), domain.ThreatMACRandomization)
			require.True(t, ok, addr)
			assert.InDelta(t, 0.55, d.Confidence, 1e-9)
		}
	})

	t.Run("rssi anomaly", func(t *testing.T) {
		var history []domain.Sighting
		for _, rssi := range []int{-80, -82, -78} {
			h := cleanSighting()
			h.RSSI = rssi
			history = append(history, h)
		}
		s := cleanSighting()
		s.RSSI = -58
		d, ok := find(e.Scan(s, history), domain.ThreatRSSIAnomaly)
		require.True(t, ok)
		assert.InDelta(t, 0.6, d.Confidence, 1e-9)
		assert.Equal(t, "-80.0", d.Evidence["expected"])

		_, ok = find(e.Scan(s, history[:2]), domain.ThreatRSSIAnomaly)
		assert.False(t, ok, "needs three samples")
	})

	t.Run("proximity", func(t *testing.T) {
		s := cleanSighting()
		s.RSSI = -50
		d, ok := find(e.Scan(s, nil), domain.ThreatProximity)
		require.True(t, ok)
		assert.InDelta(t, 0.75, d.Confidence, 1e-9)
		assert.Equal(t, "3.2", d.Evidence["estimated_distance_m"])

		s.RSSI = -60
		_, ok = find(e.Scan(s, nil), domain.ThreatProximity)
		assert.False(t, ok)
	})

	t.Run("impossible travel", func(t *testing.T) {
		prev := cleanSighting()
		prev.Timestamp = baseTime.Add(-10 * time.Second)
		prev.Position = &domain.Position{Latitude: 40.0, Longitude: -3.7}
		s := cleanSighting()
		s.Position = &domain.Position{Latitude: 40.5, Longitude: -3.7}

		_, ok := find(e.Scan(s, []domain.Sighting{prev}), domain.ThreatImpossibleTravel)
		assert.True(t, ok)

		s.Position = &domain.Position{Latitude: 40.0001, Longitude: -3.7}
		_, ok = find(e.Scan(s, []domain.Sighting{prev}), domain.ThreatImpossibleTravel)
		assert.False(t, ok)
	})
}

func TestScanAccumulatesFamilies(t *testing.T) {
	e := NewEngine(Options{ProximityThreshold: -70})

	s := cleanSighting()
	s.Address = "24:0A:C4:12:34:56"
	s.SelfID = "marauder"
	s.RSSI = -65

	ds := e.Scan(s, nil)
	families := map[domain.ThreatFamily]bool{}
	for _, d := range ds {
		families[d.Type.Family()] = true
		assert.True(t, d.Type.Valid())
		assert.Equal(t, s.Identity, d.Subject)
		assert.Equal(t, baseTime, d.DetectedAt)
	}
	assert.True(t, families[domain.FamilyVendor])
	assert.True(t, families[domain.FamilyKnownPlatform])
	assert.True(t, families[domain.FamilyDrone])
}

type staticDetector struct{}

func (staticDetector) Name() string { return "static" }

func (staticDetector) Detect(s domain.Sighting, _ []domain.Sighting) []domain.Detection {
	return []domain.Detection{domain.NewDetection(s, domain.ThreatEvilTwin, "static", 1.5, nil)}
}

func TestAddDetector(t *testing.T) {
	e := NewEngine(Options{})
	e.AddDetector(staticDetector{})
	assert.Contains(t, e.Detectors(), "static")

	d, ok := find(e.Scan(cleanSighting(), nil), domain.ThreatEvilTwin)
	require.True(t, ok)
	assert.Equal(t, 1.0, d.Confidence, "confidence clamped")
}

func TestNormalizeOUI(t *testing.T) {
	cases := map[string]string{
		"00:11:22:33:44:55": "00:11:22",
		"00-11-22-33-44-55": "00:11:22",
		"0011.2233.4455":    "00:11:22",
		"aabbccddeeff":      "AA:BB:CC",
		"AA:BB":             "",
		"mac:AA:BB:CC":      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeOUI(in), in)
	}
}
