package decoder

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// Wire sizes of the broadcast format.
const (
	MessageSize    = 25
	packHeaderSize = 3

	minBasicID        = 22
	minLocationVector = 24
	minSelfID         = 25
	minSystem         = 18
	minSystemExtended = 21
	minOperatorID     = 22
	minAuthentication = 25
)

// Meta is the transport metadata attached to every record of a frame.
type Meta = domain.FrameMeta

// Decoder turns broadcast frames into message records. It keeps no state between calls
// and is safe for concurrent use.
type Decoder struct {
	clock clock.Clock
}

// New creates a decoder. A nil clock uses the wall clock.
func New(c clock.Clock) *Decoder {
	if c == nil {
		c = clock.Real{}
	}
	return &Decoder{clock: c}
}

// Decode parses one frame received from address with the given signal strength.
func (d *Decoder) Decode(frame []byte, address string, rssi int) ([]domain.MessageRecord, error) {
	return d.DecodeWithMeta(frame, Meta{Address: address, RSSI: rssi})
}

// DecodeWithMeta parses one frame. For message packs the returned records are every
// sub-frame that decoded cleanly; err then joins the per-sub-frame failures.
func (d *Decoder) DecodeWithMeta(frame []byte, meta Meta) ([]domain.MessageRecord, error) {
	if len(frame) < 1 {
		return nil, &domain.FrameError{Need: 1, Have: 0, Err: domain.ErrMalformedFrame}
	}

	kind := domain.MessageKind(frame[0] >> 4)
	if kind == domain.KindMessagePack {
		return d.decodePack(frame, meta)
	}

	rec, err := d.decodeSingle(frame, meta)
	if err != nil {
		return nil, err
	}
	return []domain.MessageRecord{rec}, nil
}

func (d *Decoder) decodePack(frame []byte, meta Meta) ([]domain.MessageRecord, error) {
	if len(frame) < packHeaderSize {
		return nil, &domain.FrameError{Kind: domain.KindMessagePack, Need: packHeaderSize, Have: len(frame), Err: domain.ErrMalformedFrame}
	}

	size := int(frame[1])
	count := int(frame[2])
	remaining := len(frame) - packHeaderSize

	// Sizes are validated before any sub-frame is touched: a pack either fits or yields nothing.
	if size*count > remaining {
		return nil, &domain.FrameError{Kind: domain.KindMessagePack, Need: packHeaderSize + size*count, Have: len(frame), Err: domain.ErrMalformedFrame}
	}
	if count > 0 && size < MessageSize {
		return nil, &domain.FrameError{Kind: domain.KindMessagePack, Need: MessageSize, Have: size, Err: domain.ErrMalformedFrame}
	}

	records := make([]domain.MessageRecord, 0, count)
	var errs []error
	for i := 0; i < count; i++ {
		off := packHeaderSize + i*size
		sub := frame[off : off+size]

		if domain.MessageKind(sub[0]>>4) == domain.KindMessagePack {
			errs = append(errs, fmt.Errorf("sub-frame %d: nested pack: %w", i, domain.ErrMalformedFrame))
			continue
		}

		rec, err := d.decodeSingle(sub, meta)
		if err != nil {
			slog.Warn("Skipping pack sub-frame", "address", meta.Address, "index", i, "error", err)
			errs = append(errs, fmt.Errorf("sub-frame %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, errors.Join(errs...)
}

func (d *Decoder) decodeSingle(frame []byte, meta Meta) (domain.MessageRecord, error) {
	kind := domain.MessageKind(frame[0] >> 4)
	rec := domain.MessageRecord{
		Kind:       kind,
		Address:    meta.Address,
		RSSI:       meta.RSSI,
		Version:    versionLabel(frame[0] & 0x0F),
		Transport:  meta.Transport,
		ReceivedAt: d.clock.Now(),
		Network:    meta.Network,
	}

	var (
		payload domain.Payload
		err     error
	)
	switch kind {
	case domain.KindBasicID:
		payload, err = decodeBasicID(frame)
	case domain.KindLocationVector:
		payload, err = decodeLocationVector(frame)
	case domain.KindAuthentication:
		payload, err = decodeAuthentication(frame)
	case domain.KindSelfID:
		payload, err = decodeSelfID(frame)
	case domain.KindSystem:
		payload, err = decodeSystem(frame)
	case domain.KindOperatorID:
		payload, err = decodeOperatorID(frame)
	default:
		return domain.MessageRecord{}, &domain.FrameError{Kind: kind, Err: domain.ErrUnknownMessageKind}
	}
	if err != nil {
		return domain.MessageRecord{}, err
	}

	rec.Payload = payload
	return rec, nil
}

func versionLabel(v uint8) string {
	switch v {
	case 0:
		return "19"
	case 1:
		return "22"
	default:
		return "23"
	}
}

func short(kind domain.MessageKind, need, have int) error {
	return &domain.FrameError{Kind: kind, Need: need, Have: have, Err: domain.ErrMalformedFrame}
}

func decodeBasicID(b []byte) (domain.Payload, error) {
	if len(b) < minBasicID {
		return nil, short(domain.KindBasicID, minBasicID, len(b))
	}
	return domain.BasicID{
		IDType: domain.IDType(b[1] >> 4),
		UAType: domain.UAType(b[1] & 0x0F),
		ID:     trimText(b[2:22]),
	}, nil
}

func decodeLocationVector(b []byte) (domain.Payload, error) {
	if len(b) < minLocationVector {
		return nil, short(domain.KindLocationVector, minLocationVector, len(b))
	}

	flags := b[1]
	ewSegment := flags&0x02 != 0
	multiplier := flags&0x01 != 0

	lat := float64(int32(binary.LittleEndian.Uint32(b[5:9]))) * 1e-7
	lng := float64(int32(binary.LittleEndian.Uint32(b[9:13]))) * 1e-7
	valid := domain.ValidCoordinate(lat, lng)
	if !valid {
		lat, lng = 0, 0
	}

	ts := binary.LittleEndian.Uint16(b[21:23])

	return domain.LocationVector{
		Status:             domain.OperationalStatus(flags >> 4),
		HeightType:         domain.HeightType((flags >> 2) & 0x01),
		Direction:          DecodeDirection(b[2], ewSegment),
		SpeedHorizontal:    DecodeSpeed(b[3], multiplier),
		SpeedVertical:      float64(int8(b[4])) * 0.5,
		Latitude:           lat,
		Longitude:          lng,
		PositionValid:      valid,
		AltitudePressure:   DecodeAltitude(binary.LittleEndian.Uint16(b[13:15])),
		AltitudeGeodetic:   DecodeAltitude(binary.LittleEndian.Uint16(b[15:17])),
		Height:             DecodeAltitude(binary.LittleEndian.Uint16(b[17:19])),
		VerticalAccuracy:   domain.VerticalAccuracy(b[19] >> 4),
		HorizontalAccuracy: domain.HorizontalAccuracy(b[19] & 0x0F),
		BaroAccuracy:       domain.VerticalAccuracy(b[20] >> 4),
		SpeedAccuracy:      domain.SpeedAccuracy(b[20] & 0x0F),
		Timestamp: domain.Timestamp{
			Minutes: int(ts) / 600,
			Seconds: float64(int(ts)%600) / 10,
		},
		TimestampAccuracy: float64(b[23]&0x0F) * 0.1,
	}, nil
}

func decodeAuthentication(b []byte) (domain.Payload, error) {
	if len(b) < minAuthentication {
		return nil, short(domain.KindAuthentication, minAuthentication, len(b))
	}
	return domain.Authentication{
		AuthType:  domain.AuthType(b[1] >> 4),
		Page:      int(b[1] & 0x0F),
		LastPage:  int(b[2]),
		Length:    int(b[3]),
		Timestamp: binary.LittleEndian.Uint32(b[4:8]),
		Data:      hex.EncodeToString(b[8:25]),
	}, nil
}

func decodeSelfID(b []byte) (domain.Payload, error) {
	if len(b) < minSelfID {
		return nil, short(domain.KindSelfID, minSelfID, len(b))
	}
	return domain.SelfID{
		DescriptionType: domain.DescriptionType(b[1]),
		Text:            trimText(b[2:25]),
	}, nil
}

func decodeSystem(b []byte) (domain.Payload, error) {
	if len(b) < minSystem {
		return nil, short(domain.KindSystem, minSystem, len(b))
	}

	lat := float64(int32(binary.LittleEndian.Uint32(b[3:7]))) * 1e-7
	lng := float64(int32(binary.LittleEndian.Uint32(b[7:11]))) * 1e-7
	valid := domain.ValidCoordinate(lat, lng)
	if !valid {
		lat, lng = 0, 0
	}

	sys := domain.System{
		OperatorLocationType: domain.OperatorLocationType(b[1]),
		ClassificationType:   domain.ClassificationType(b[2]),
		OperatorLatitude:     lat,
		OperatorLongitude:    lng,
		OperatorValid:        valid,
		AreaCount:            int(binary.LittleEndian.Uint16(b[11:13])),
		AreaRadius:           float64(b[13]) * 10,
		AreaCeiling:          DecodeAltitude(binary.LittleEndian.Uint16(b[14:16])),
		AreaFloor:            DecodeAltitude(binary.LittleEndian.Uint16(b[16:18])),
	}
	if len(b) >= minSystemExtended {
		sys.Category = domain.UACategory(b[18] >> 4)
		sys.Class = domain.UAClass(b[18] & 0x0F)
		sys.OperatorAltitude = DecodeAltitude(binary.LittleEndian.Uint16(b[19:21]))
	}
	return sys, nil
}

func decodeOperatorID(b []byte) (domain.Payload, error) {
	if len(b) < minOperatorID {
		return nil, short(domain.KindOperatorID, minOperatorID, len(b))
	}
	return domain.OperatorID{
		IDType: domain.OperatorIDType(b[1]),
		ID:     trimText(b[2:22]),
	}, nil
}

// DecodeDirection scales the raw heading by 1.4 and adds 180 for the east/west segment.
func DecodeDirection(raw uint8, ewSegment bool) float64 {
	dir := float64(raw) * 1.4
	if ewSegment {
		dir += 180
	}
	for dir >= 360 {
		dir -= 360
	}
	return dir
}

// DecodeSpeed applies the single documented speed formula:
// raw*0.25 normally, raw*0.75 + 63.75 when the multiplier bit is set.
func DecodeSpeed(raw uint8, multiplier bool) float64 {
	if multiplier {
		return float64(raw)*0.75 + 255*0.25
	}
	return float64(raw) * 0.25
}

// DecodeAltitude converts half-meter units with a -1000 m offset.
func DecodeAltitude(raw uint16) float64 {
	return float64(raw)/2 - 1000
}

func trimText(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, " ")
}
