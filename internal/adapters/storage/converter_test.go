package storage

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

func sampleSighting(now time.Time) domain.Sighting {
	return domain.Sighting{
		Identity:   "SERIAL123456",
		Address:    "60:60:1F:00:00:01",
		Position:   &domain.Position{Latitude: 40.4168, Longitude: -3.7038, Altitude: 120},
		Vector:     domain.Vector{Direction: 90, SpeedHorizontal: 12.5, Height: 80},
		Operator:   &domain.Position{Latitude: 40.41, Longitude: -3.70},
		RSSI:       -67,
		Provenance: map[domain.MessageKind]bool{domain.KindBasicID: true, domain.KindLocationVector: true},
		RawFields:  map[string]string{"source": "test"},
		Timestamp:  now,
		BasicID:    &domain.BasicID{IDType: "serial", UAType: "helicopter_or_multirotor", ID: "SERIAL123456"},
		OperatorID: "OP-1234",
		Transport:  domain.TransportWiFi,
		Vendor:     "DJI",
		Network:    &domain.NetworkContext{SSID: "DJI-RID", BSSID: "60:60:1F:00:00:01", Channel: 6, Security: "WPA2"},
	}
}

func TestSightingRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	in := sampleSighting(now)

	m := toSightingModel(in)
	assert.True(t, m.HasPosition)
	assert.Equal(t, "DJI-RID", m.SSID)

	if diff := cmp.Diff(in, toSighting(m)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSightingWithoutPosition(t *testing.T) {
	in := domain.Sighting{Identity: "mac:00:11:22:33:44:55", Provenance: map[domain.MessageKind]bool{}}
	out := toSighting(toSightingModel(in))
	assert.Nil(t, out.Position)
	assert.Equal(t, in.Identity, out.Identity)
}

func TestCorruptExtrasKeepsColumns(t *testing.T) {
	out := toSighting(SightingModel{Identity: "X", RSSI: -40, Extras: "{not json"})
	assert.Equal(t, "X", out.Identity)
	assert.Equal(t, -40, out.RSSI)
}
