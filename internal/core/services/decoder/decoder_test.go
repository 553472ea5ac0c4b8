package decoder

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

const testAddr = "AA:BB:CC:DD:EE:01"

func newTestDecoder() *Decoder {
	return New(clock.NewMock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
}

func TestDecodeBasicID(t *testing.T) {
	d := newTestDecoder()

	recs, err := d.Decode(EncodeBasicID(1, 2, "SERIAL123456"), testAddr, -70)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, domain.KindBasicID, rec.Kind)
	assert.Equal(t, testAddr, rec.Address)
	assert.Equal(t, -70, rec.RSSI)
	assert.Equal(t, "23", rec.Version)

	basic, ok := rec.Payload.(domain.BasicID)
	require.True(t, ok)
	assert.Equal(t, "serial", basic.IDType)
	assert.Equal(t, "helicopter_multirotor", basic.UAType)
	assert.Equal(t, "SERIAL123456", basic.ID)
}

func TestVersionLabels(t *testing.T) {
	d := newTestDecoder()
	frame := EncodeBasicID(1, 2, "SERIAL123456")

	for v, want := range map[byte]string{0: "19", 1: "22", 2: "23", 7: "23"} {
		frame[0] = byte(domain.KindBasicID)<<4 | v
		recs, err := d.Decode(frame, testAddr, -60)
		require.NoError(t, err)
		assert.Equal(t, want, recs[0].Version)
	}
}

func TestLocationVectorRoundTrip(t *testing.T) {
	d := newTestDecoder()

	cases := []Location{
		{Status: 2, Direction: 90, SpeedHorizontal: 12.25, SpeedVertical: 1.5, Latitude: 37.7749295, Longitude: -122.4194155, AltitudePressure: 120.5, AltitudeGeodetic: 130, Height: 45.5, TimestampTenths: 17200},
		{Status: 2, Direction: 271.3, SpeedHorizontal: 80.1, SpeedVertical: -4, Latitude: -33.8688197, Longitude: 151.2092955, AltitudePressure: -12, AltitudeGeodetic: 2500.25, Height: 0, TimestampTenths: 35999},
		{Status: 1, Direction: 0, SpeedHorizontal: 0, SpeedVertical: 0, Latitude: 51.5007292, Longitude: -0.1246254, AltitudePressure: 0, AltitudeGeodetic: 10, Height: 2, TimestampTenths: 0},
		{Status: 2, Direction: 179.2, SpeedHorizontal: 63.75, SpeedVertical: 20.5, Latitude: 89.9999999, Longitude: 179.9999999, AltitudePressure: 31000, AltitudeGeodetic: -999.5, Height: 1000, TimestampTenths: 600},
	}

	for _, in := range cases {
		recs, err := d.Decode(EncodeLocationVector(in), testAddr, -65)
		require.NoError(t, err)
		require.Len(t, recs, 1)

		lv, ok := recs[0].Payload.(domain.LocationVector)
		require.True(t, ok)

		assert.True(t, lv.PositionValid)
		assert.InDelta(t, in.Latitude, lv.Latitude, 1e-7)
		assert.InDelta(t, in.Longitude, lv.Longitude, 1e-7)
		assert.InDelta(t, in.AltitudePressure, lv.AltitudePressure, 0.25)
		assert.InDelta(t, in.AltitudeGeodetic, lv.AltitudeGeodetic, 0.25)
		assert.InDelta(t, in.Height, lv.Height, 0.25)
		assert.InDelta(t, in.SpeedVertical, lv.SpeedVertical, 0.25)
		if in.SpeedHorizontal <= 63.75 {
			assert.InDelta(t, in.SpeedHorizontal, lv.SpeedHorizontal, 0.125)
		} else {
			assert.InDelta(t, in.SpeedHorizontal, lv.SpeedHorizontal, 0.375)
		}
		assert.InDelta(t, in.Direction, lv.Direction, 0.7)
		assert.Equal(t, int(in.TimestampTenths)/600, lv.Timestamp.Minutes)
	}
}

func TestLocationVectorFlags(t *testing.T) {
	d := newTestDecoder()

	frame := EncodeLocationVector(Location{Status: 2, Latitude: 10, Longitude: 10})
	frame[1] |= 0x02 // east/west segment
	frame[2] = 50    // 70 degrees
	frame[3] = 100   // speed raw
	frame[1] |= 0x01 // multiplier

	recs, err := d.Decode(frame, testAddr, -50)
	require.NoError(t, err)
	lv := recs[0].Payload.(domain.LocationVector)

	assert.Equal(t, "airborne", lv.Status)
	assert.InDelta(t, 250.0, lv.Direction, 1e-9)
	assert.InDelta(t, 100*0.75+63.75, lv.SpeedHorizontal, 1e-9)
}

func TestDirectionWraps(t *testing.T) {
	assert.InDelta(t, 16.0, DecodeDirection(140, true), 1e-9)
	assert.Less(t, DecodeDirection(255, true), 360.0)
	assert.InDelta(t, 0.0, DecodeDirection(0, false), 1e-9)
}

func TestSpeedFormula(t *testing.T) {
	assert.Equal(t, 0.25, DecodeSpeed(1, false))
	assert.Equal(t, 63.75, DecodeSpeed(255, false))
	assert.Equal(t, 63.75, DecodeSpeed(0, true))
	assert.Equal(t, 64.5, DecodeSpeed(1, true))
}

func TestLocationVectorInvalidCoordinate(t *testing.T) {
	d := newTestDecoder()

	for _, in := range []Location{
		{Latitude: 0, Longitude: 0},
		{Latitude: 95, Longitude: 10},
		{Latitude: 10, Longitude: -190},
	} {
		recs, err := d.Decode(EncodeLocationVector(in), testAddr, -60)
		require.NoError(t, err, "record is kept")
		lv := recs[0].Payload.(domain.LocationVector)
		assert.False(t, lv.PositionValid)
		assert.Zero(t, lv.Latitude)
		assert.Zero(t, lv.Longitude)
	}
}

func TestDecodeSelfIDAndOperator(t *testing.T) {
	d := newTestDecoder()

	recs, err := d.Decode(EncodeSelfID(0, "Survey flight 7"), testAddr, -60)
	require.NoError(t, err)
	self := recs[0].Payload.(domain.SelfID)
	assert.Equal(t, "text", self.DescriptionType)
	assert.Equal(t, "Survey flight 7", self.Text)

	recs, err = d.Decode(EncodeOperatorID(0, "FIN87astrdge12k8"), testAddr, -60)
	require.NoError(t, err)
	op := recs[0].Payload.(domain.OperatorID)
	assert.Equal(t, "caa", op.IDType)
	assert.Equal(t, "FIN87astrdge12k8", op.ID)
}

func TestDecodeSystem(t *testing.T) {
	d := newTestDecoder()

	frame := EncodeSystem(1, 40.4167754, -3.7037902, 3, 150, 120, 10, 1, 3, 650)
	recs, err := d.Decode(frame, testAddr, -60)
	require.NoError(t, err)

	sys := recs[0].Payload.(domain.System)
	assert.Equal(t, "live_gnss", sys.OperatorLocationType)
	assert.True(t, sys.OperatorValid)
	assert.InDelta(t, 40.4167754, sys.OperatorLatitude, 1e-7)
	assert.InDelta(t, -3.7037902, sys.OperatorLongitude, 1e-7)
	assert.Equal(t, 3, sys.AreaCount)
	assert.Equal(t, 150.0, sys.AreaRadius)
	assert.Equal(t, 120.0, sys.AreaCeiling)
	assert.Equal(t, 10.0, sys.AreaFloor)
	assert.Equal(t, "open", sys.Category)
	assert.Equal(t, "C2", sys.Class)
	assert.Equal(t, 650.0, sys.OperatorAltitude)

	// Without the optional tail.
	recs, err = d.Decode(frame[:18], testAddr, -60)
	require.NoError(t, err)
	assert.Empty(t, recs[0].Payload.(domain.System).Category)
}

func TestDecodeAuthentication(t *testing.T) {
	d := newTestDecoder()
	data := []byte("0123456789abcdefg")

	recs, err := d.Decode(EncodeAuthentication(1, 2, 4, 68, 123456, data), testAddr, -60)
	require.NoError(t, err)

	auth := recs[0].Payload.(domain.Authentication)
	assert.Equal(t, "uas_id_signature", auth.AuthType)
	assert.Equal(t, 2, auth.Page)
	assert.Equal(t, 4, auth.LastPage)
	assert.Equal(t, 68, auth.Length)
	assert.Equal(t, uint32(123456), auth.Timestamp)
	assert.Equal(t, hex.EncodeToString(data), auth.Data)
}

func TestDecodeShortFrame(t *testing.T) {
	d := newTestDecoder()

	recs, err := d.Decode(EncodeBasicID(1, 2, "SERIAL123456")[:10], testAddr, -60)
	assert.Nil(t, recs)
	assert.ErrorIs(t, err, domain.ErrMalformedFrame)

	var fe *domain.FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.KindBasicID, fe.Kind)
	assert.Equal(t, 22, fe.Need)
	assert.Equal(t, 10, fe.Have)

	_, err = d.Decode(nil, testAddr, -60)
	assert.ErrorIs(t, err, domain.ErrMalformedFrame)
}

func TestDecodeUnknownKind(t *testing.T) {
	d := newTestDecoder()
	frame := make([]byte, MessageSize)
	frame[0] = 0x72

	recs, err := d.Decode(frame, testAddr, -60)
	assert.Empty(t, recs)
	assert.ErrorIs(t, err, domain.ErrUnknownMessageKind)
}

func TestMessagePack(t *testing.T) {
	d := newTestDecoder()

	pack := EncodePack(
		EncodeBasicID(1, 2, "SERIAL123456"),
		EncodeLocationVector(Location{Status: 2, Latitude: 40.1, Longitude: -3.2}),
		EncodeOperatorID(0, "OP12345"),
	)

	recs, err := d.Decode(pack, testAddr, -55)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, domain.KindBasicID, recs[0].Kind)
	assert.Equal(t, domain.KindLocationVector, recs[1].Kind)
	assert.Equal(t, domain.KindOperatorID, recs[2].Kind)
	for _, r := range recs {
		assert.Equal(t, testAddr, r.Address)
		assert.Equal(t, -55, r.RSSI)
	}
}

func TestMessagePackRejectsUndersizedStride(t *testing.T) {
	d := newTestDecoder()

	buf := make([]byte, 63)
	buf[0] = 0xF2
	buf[1] = 20
	buf[2] = 3

	recs, err := d.Decode(buf, testAddr, -55)
	assert.ErrorIs(t, err, domain.ErrMalformedFrame)
	assert.Empty(t, recs)
}

func TestMessagePackRejectsOverflow(t *testing.T) {
	d := newTestDecoder()

	pack := EncodePack(
		EncodeBasicID(1, 2, "SERIAL123456"),
		EncodeSelfID(0, "hello"),
	)
	pack[2] = 3 // claims three units, carries two

	recs, err := d.Decode(pack, testAddr, -55)
	assert.ErrorIs(t, err, domain.ErrMalformedFrame)
	assert.Empty(t, recs)
}

func TestMessagePackSkipsBadSubFrame(t *testing.T) {
	d := newTestDecoder()

	unknown := make([]byte, MessageSize)
	unknown[0] = 0x92

	pack := EncodePack(
		EncodeBasicID(1, 2, "SERIAL123456"),
		unknown,
		EncodeSelfID(0, "hello"),
	)

	recs, err := d.Decode(pack, testAddr, -55)
	require.Len(t, recs, 2, "siblings survive")
	assert.ErrorIs(t, err, domain.ErrUnknownMessageKind)
	assert.Equal(t, domain.KindBasicID, recs[0].Kind)
	assert.Equal(t, domain.KindSelfID, recs[1].Kind)
}

func TestDecodeWithMetaCarriesTransport(t *testing.T) {
	d := newTestDecoder()
	net := &domain.NetworkContext{SSID: "DroneNet", BSSID: "02:11:22:33:44:55", Channel: 6}

	recs, err := d.DecodeWithMeta(EncodeBasicID(1, 2, "SERIAL123456"), Meta{
		Address:   testAddr,
		RSSI:      -42,
		Transport: domain.TransportWiFi,
		Network:   net,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransportWiFi, recs[0].Transport)
	assert.Same(t, net, recs[0].Network)
}
