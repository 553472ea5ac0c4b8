package correlator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/decoder"
	"github.com/lcalzada-xor/ridwatch/internal/geo"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func basicID(addr, id string, rssi int) domain.MessageRecord {
	return domain.MessageRecord{
		Kind:    domain.KindBasicID,
		Address: addr,
		RSSI:    rssi,
		Payload: domain.BasicID{IDType: "serial", UAType: "helicopter_multirotor", ID: id},
	}
}

func location(addr string, rssi int, lat, lng float64) domain.MessageRecord {
	return domain.MessageRecord{
		Kind:    domain.KindLocationVector,
		Address: addr,
		RSSI:    rssi,
		Payload: domain.LocationVector{
			Latitude:        lat,
			Longitude:       lng,
			PositionValid:   domain.ValidCoordinate(lat, lng),
			SpeedHorizontal: 5,
			Direction:       90,
		},
	}
}

func newTestCorrelator() (*Correlator, *clock.Mock) {
	clk := clock.NewMock(t0)
	return New(Options{Clock: clk}), clk
}

func TestTwoAddressesResolveToSameIdentity(t *testing.T) {
	c, clk := newTestCorrelator()

	_, ok := c.Ingest(basicID("AA:BB:CC:DD:EE:01", "SERIAL123456", -60))
	require.True(t, ok)
	clk.Advance(100 * time.Millisecond)
	c.Ingest(basicID("AA:BB:CC:DD:EE:02", "SERIAL123456", -62))

	clk.Advance(3 * time.Second)
	s, ok := c.Ingest(location("AA:BB:CC:DD:EE:02", -61, 40.1, -3.2))
	require.True(t, ok)
	assert.Equal(t, "SERIAL123456", s.Identity)

	clk.Advance(3 * time.Second)
	s, ok = c.Ingest(location("AA:BB:CC:DD:EE:01", -61, 40.2, -3.3))
	require.True(t, ok)
	assert.Equal(t, "SERIAL123456", s.Identity)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", s.Address)

	_, identities := c.Counts()
	assert.Equal(t, 1, identities)
}

func TestAddressMappingExpires(t *testing.T) {
	c, clk := newTestCorrelator()
	addr := "AA:BB:CC:DD:EE:01"

	c.Ingest(basicID(addr, "SERIAL123456", -60))
	id, err := c.Lookup(addr)
	require.NoError(t, err)
	assert.Equal(t, "SERIAL123456", id)

	clk.Advance(29 * time.Second)
	_, err = c.Lookup(addr)
	assert.NoError(t, err)

	clk.Advance(2 * time.Second) // t = 31s
	_, err = c.Lookup(addr)
	assert.ErrorIs(t, err, domain.ErrStaleAddressMapping)

	s, ok := c.Ingest(location(addr, -60, 40.1, -3.2))
	require.True(t, ok)
	assert.Equal(t, "mac:"+addr, s.Identity)
	assert.True(t, s.IsSynthetic())

	addresses, _ := c.Counts()
	assert.Zero(t, addresses, "sweep removed the entry")
}

func TestThrottle(t *testing.T) {
	c, clk := newTestCorrelator()
	addr := "AA:BB:CC:DD:EE:01"

	_, ok := c.Ingest(basicID(addr, "SERIAL123456", -60))
	require.True(t, ok)

	clk.Advance(500 * time.Millisecond)
	_, ok = c.Ingest(location(addr, -60, 40.1, -3.2))
	assert.False(t, ok, "500ms after the last emission is throttled")

	stored, found := c.Get("SERIAL123456")
	require.True(t, found)
	require.NotNil(t, stored.Position, "throttled records are still merged")

	clk.Advance(1600 * time.Millisecond) // 2100ms after the first emission
	s, ok := c.Ingest(location(addr, -60, 40.2, -3.2))
	assert.True(t, ok)
	assert.InDelta(t, 40.2, s.Position.Latitude, 1e-9)
}

func TestThrottleIsPerIdentity(t *testing.T) {
	c, _ := newTestCorrelator()

	_, ok := c.Ingest(basicID("AA:BB:CC:DD:EE:01", "SERIAL111111", -60))
	assert.True(t, ok)
	_, ok = c.Ingest(basicID("AA:BB:CC:DD:EE:02", "SERIAL222222", -60))
	assert.True(t, ok)
}

func TestDropsZeroRSSIAndInvalidMarker(t *testing.T) {
	c, _ := newTestCorrelator()

	_, ok := c.Ingest(basicID("AA:BB:CC:DD:EE:01", "SERIAL123456", 0))
	assert.False(t, ok)

	_, ok = c.Ingest(basicID("AA:BB:CC:DD:EE:02", "INVALID000001", -60))
	assert.False(t, ok)

	_, identities := c.Counts()
	assert.Zero(t, identities, "dropped records never reach the merge")
}

func TestInvalidIdentityIsAnonymous(t *testing.T) {
	c, _ := newTestCorrelator()

	s, ok := c.Ingest(basicID("AA:BB:CC:DD:EE:01", "short", -60))
	require.True(t, ok)
	assert.Equal(t, "mac:AA:BB:CC:DD:EE:01", s.Identity)

	_, err := c.Lookup("AA:BB:CC:DD:EE:01")
	assert.ErrorIs(t, err, domain.ErrStaleAddressMapping)
}

func TestSelfIDIdentity(t *testing.T) {
	c, clk := newTestCorrelator()
	addr := "AA:BB:CC:DD:EE:09"

	s, ok := c.Ingest(domain.MessageRecord{
		Kind:    domain.KindSelfID,
		Address: addr,
		RSSI:    -70,
		Payload: domain.SelfID{DescriptionType: "text", Text: "07 SKY4471X"},
	})
	require.True(t, ok)
	assert.Equal(t, "SKY4471X", s.Identity)
	assert.Equal(t, "07 SKY4471X", s.SelfID)

	clk.Advance(3 * time.Second)
	s, ok = c.Ingest(location(addr, -70, 40.1, -3.2))
	require.True(t, ok)
	assert.Equal(t, "SKY4471X", s.Identity)
}

func TestMergeLastValueWins(t *testing.T) {
	c, clk := newTestCorrelator()
	addr := "AA:BB:CC:DD:EE:01"

	c.Ingest(basicID(addr, "SERIAL123456", -60))
	c.Ingest(location(addr, -58, 40.1, -3.2))
	c.Ingest(domain.MessageRecord{
		Kind:    domain.KindSystem,
		Address: addr,
		RSSI:    -57,
		Payload: domain.System{OperatorLatitude: 40.0, OperatorLongitude: -3.0, OperatorValid: true, Category: "open"},
	})
	c.Ingest(domain.MessageRecord{
		Kind:    domain.KindOperatorID,
		Address: addr,
		RSSI:    -56,
		Payload: domain.OperatorID{IDType: "caa", ID: "OP998877"},
	})
	c.Ingest(location(addr, -55, 0, 0)) // invalid fix keeps the last known one

	clk.Advance(3 * time.Second)
	s, ok := c.Ingest(domain.MessageRecord{
		Kind:    domain.KindAuthentication,
		Address: addr,
		RSSI:    -54,
		Payload: domain.Authentication{AuthType: "uas_id_signature"},
	})
	require.True(t, ok)

	assert.Equal(t, -54, s.RSSI)
	require.NotNil(t, s.Position)
	assert.InDelta(t, 40.1, s.Position.Latitude, 1e-9)
	require.NotNil(t, s.Operator)
	assert.InDelta(t, 40.0, s.Operator.Latitude, 1e-9)
	assert.Equal(t, "OP998877", s.OperatorID)
	assert.Equal(t, "uas_id_signature", s.AuthType)
	assert.Equal(t, "open", s.RawFields["ua_category"])
	assert.Equal(t, []domain.MessageKind{
		domain.KindBasicID, domain.KindLocationVector, domain.KindAuthentication,
		domain.KindSystem, domain.KindOperatorID,
	}, s.Kinds())
}

func TestExtraFieldsBecomeHomeAndSpoof(t *testing.T) {
	c, _ := newTestCorrelator()

	rec := basicID("AA:BB:CC:DD:EE:01", "SERIAL123456", -60)
	rec.Extra = map[string]string{
		decoder.ExtraHomeLatitude:    "40.41",
		decoder.ExtraHomeLongitude:   "-3.70",
		decoder.ExtraSpoofConfidence: "0.93",
		decoder.ExtraSpoofReason:     "gps jump",
	}

	s, ok := c.Ingest(rec)
	require.True(t, ok)
	require.NotNil(t, s.Home)
	assert.InDelta(t, 40.41, s.Home.Latitude, 1e-9)
	require.NotNil(t, s.Spoof)
	assert.True(t, s.Spoof.Suspected)
	assert.Equal(t, 0.93, s.Spoof.Confidence)
	assert.Equal(t, "gps jump", s.Spoof.Reason)
}

func TestPositionEstimation(t *testing.T) {
	clk := clock.NewMock(t0)
	observer := geo.NewStaticProvider(40.4168, -3.7038)
	c := New(Options{
		Clock:             clk,
		EstimatePositions: true,
		Observer:          observer,
		Bearing:           func() float64 { return 90 },
	})

	s, ok := c.Ingest(basicID("AA:BB:CC:DD:EE:01", "SERIAL123456", -60))
	require.True(t, ok)
	require.NotNil(t, s.Position)
	assert.True(t, s.Estimated)
	assert.Equal(t, "10.0", s.Evidence[EvidenceEstimatedDistance])

	origin, _ := observer.GetLocation()
	got := geo.Location{Latitude: s.Position.Latitude, Longitude: s.Position.Longitude}
	assert.InDelta(t, 10, geo.Distance(origin, got), 0.01)

	stored, _ := c.Get("SERIAL123456")
	assert.Nil(t, stored.Position, "estimate is never stored")
	assert.False(t, stored.Estimated)

	// A self-reported position is never replaced.
	clk.Advance(3 * time.Second)
	s, ok = c.Ingest(location("AA:BB:CC:DD:EE:01", -90, 41.0, -3.0))
	require.True(t, ok)
	assert.False(t, s.Estimated)
	assert.InDelta(t, 41.0, s.Position.Latitude, 1e-9)
}

func TestPositionEstimationCapped(t *testing.T) {
	c := New(Options{
		Clock:             clock.NewMock(t0),
		EstimatePositions: true,
		Observer:          geo.NewStaticProvider(40.4168, -3.7038),
	})

	s, ok := c.Ingest(basicID("AA:BB:CC:DD:EE:01", "SERIAL123456", -110))
	require.True(t, ok)
	assert.Equal(t, "300.0", s.Evidence[EvidenceEstimatedDistance])
}

func TestPositionEstimationNeedsObserverFix(t *testing.T) {
	c := New(Options{
		Clock:             clock.NewMock(t0),
		EstimatePositions: true,
		Observer:          &geo.MutableProvider{},
	})

	s, ok := c.Ingest(basicID("AA:BB:CC:DD:EE:01", "SERIAL123456", -60))
	require.True(t, ok)
	assert.Nil(t, s.Position)
	assert.False(t, s.Estimated)
}

func TestConcurrentIngestKeepsIdentitiesApart(t *testing.T) {
	c, _ := newTestCorrelator()

	var wg sync.WaitGroup
	emitted := make([]int, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			addr := fmt.Sprintf("AA:BB:CC:DD:EE:%02X", w)
			id := fmt.Sprintf("SERIAL%06d", w+1)
			for i := 0; i < 200; i++ {
				var rec domain.MessageRecord
				if i%2 == 0 {
					rec = basicID(addr, id, -60)
				} else {
					rec = location(addr, -60, 40+float64(w), -3)
				}
				if s, ok := c.Ingest(rec); ok {
					if s.Identity != id {
						t.Errorf("worker %d got identity %s", w, s.Identity)
					}
					emitted[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 8; w++ {
		assert.Equal(t, 1, emitted[w], "clock never moves, so one emission per identity")
		s, ok := c.Get(fmt.Sprintf("SERIAL%06d", w+1))
		require.True(t, ok)
		assert.InDelta(t, 40+float64(w), s.Position.Latitude, 1e-9)
	}
}

func TestPruneAndClear(t *testing.T) {
	c, clk := newTestCorrelator()

	c.Ingest(basicID("AA:BB:CC:DD:EE:01", "SERIAL123456", -60))
	clk.Advance(10 * time.Minute)
	assert.Equal(t, 1, c.PruneSightings(5*time.Minute))
	assert.Empty(t, c.Sightings())

	c.Ingest(basicID("AA:BB:CC:DD:EE:01", "SERIAL123456", -60))
	c.Clear()
	a, i := c.Counts()
	assert.Zero(t, a)
	assert.Zero(t, i)
}
