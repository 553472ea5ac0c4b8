package decoder

import (
	"encoding/binary"
	"math"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// protocolVersion is written into the header low nibble of encoded frames.
const protocolVersion = 0x2

// Location is the unscaled input for EncodeLocationVector.
type Location struct {
	Status            uint8
	HeightAboveGround bool
	Direction         float64
	SpeedHorizontal   float64
	SpeedVertical     float64
	Latitude          float64
	Longitude         float64
	AltitudePressure  float64
	AltitudeGeodetic  float64
	Height            float64
	HorizontalAcc     uint8
	VerticalAcc       uint8
	BaroAcc           uint8
	SpeedAcc          uint8
	TimestampTenths   uint16
	TimestampAcc      uint8
}

func header(kind domain.MessageKind) byte {
	return byte(kind)<<4 | protocolVersion
}

// EncodeBasicID builds a 25-byte BasicID frame.
func EncodeBasicID(idType, uaType uint8, id string) []byte {
	b := make([]byte, MessageSize)
	b[0] = header(domain.KindBasicID)
	b[1] = idType<<4 | uaType&0x0F
	copy(b[2:22], id)
	return b
}

// EncodeLocationVector builds a 25-byte LocationVector frame.
func EncodeLocationVector(l Location) []byte {
	b := make([]byte, MessageSize)
	b[0] = header(domain.KindLocationVector)

	dirRaw, ew := EncodeDirection(l.Direction)
	speedRaw, mult := EncodeSpeed(l.SpeedHorizontal)

	flags := l.Status << 4
	if l.HeightAboveGround {
		flags |= 0x04
	}
	if ew {
		flags |= 0x02
	}
	if mult {
		flags |= 0x01
	}
	b[1] = flags
	b[2] = dirRaw
	b[3] = speedRaw
	b[4] = byte(int8(clamp(math.Round(l.SpeedVertical/0.5), -128, 127)))

	binary.LittleEndian.PutUint32(b[5:9], uint32(int32(math.Round(l.Latitude*1e7))))
	binary.LittleEndian.PutUint32(b[9:13], uint32(int32(math.Round(l.Longitude*1e7))))
	binary.LittleEndian.PutUint16(b[13:15], EncodeAltitude(l.AltitudePressure))
	binary.LittleEndian.PutUint16(b[15:17], EncodeAltitude(l.AltitudeGeodetic))
	binary.LittleEndian.PutUint16(b[17:19], EncodeAltitude(l.Height))
	b[19] = l.VerticalAcc<<4 | l.HorizontalAcc&0x0F
	b[20] = l.BaroAcc<<4 | l.SpeedAcc&0x0F
	binary.LittleEndian.PutUint16(b[21:23], l.TimestampTenths)
	b[23] = l.TimestampAcc & 0x0F
	return b
}

// EncodeSelfID builds a 25-byte SelfID frame.
func EncodeSelfID(descType uint8, text string) []byte {
	b := make([]byte, MessageSize)
	b[0] = header(domain.KindSelfID)
	b[1] = descType
	copy(b[2:25], text)
	return b
}

// EncodeSystem builds a 25-byte System frame with the extended category/class fields.
func EncodeSystem(locType uint8, lat, lng float64, areaCount uint16, areaRadius, ceiling, floor float64, category, class uint8, opAlt float64) []byte {
	b := make([]byte, MessageSize)
	b[0] = header(domain.KindSystem)
	b[1] = locType
	b[2] = 1
	binary.LittleEndian.PutUint32(b[3:7], uint32(int32(math.Round(lat*1e7))))
	binary.LittleEndian.PutUint32(b[7:11], uint32(int32(math.Round(lng*1e7))))
	binary.LittleEndian.PutUint16(b[11:13], areaCount)
	b[13] = byte(clamp(math.Round(areaRadius/10), 0, 255))
	binary.LittleEndian.PutUint16(b[14:16], EncodeAltitude(ceiling))
	binary.LittleEndian.PutUint16(b[16:18], EncodeAltitude(floor))
	b[18] = category<<4 | class&0x0F
	binary.LittleEndian.PutUint16(b[19:21], EncodeAltitude(opAlt))
	return b
}

// EncodeOperatorID builds a 25-byte OperatorID frame.
func EncodeOperatorID(idType uint8, id string) []byte {
	b := make([]byte, MessageSize)
	b[0] = header(domain.KindOperatorID)
	b[1] = idType
	copy(b[2:22], id)
	return b
}

// EncodeAuthentication builds a 25-byte Authentication page.
func EncodeAuthentication(authType, page, lastPage, length uint8, ts uint32, data []byte) []byte {
	b := make([]byte, MessageSize)
	b[0] = header(domain.KindAuthentication)
	b[1] = authType<<4 | page&0x0F
	b[2] = lastPage
	b[3] = length
	binary.LittleEndian.PutUint32(b[4:8], ts)
	copy(b[8:25], data)
	return b
}

// EncodePack wraps frames into a MessagePack at the standard stride.
func EncodePack(frames ...[]byte) []byte {
	b := make([]byte, packHeaderSize, packHeaderSize+len(frames)*MessageSize)
	b[0] = header(domain.KindMessagePack)
	b[1] = MessageSize
	b[2] = byte(len(frames))
	for _, f := range frames {
		unit := make([]byte, MessageSize)
		copy(unit, f)
		b = append(b, unit...)
	}
	return b
}

// EncodeDirection is the inverse of DecodeDirection.
func EncodeDirection(dir float64) (uint8, bool) {
	dir = math.Mod(dir, 360)
	if dir < 0 {
		dir += 360
	}
	ew := false
	if dir >= 180 {
		ew = true
		dir -= 180
	}
	return uint8(clamp(math.Round(dir/1.4), 0, 255)), ew
}

// EncodeSpeed is the inverse of DecodeSpeed.
func EncodeSpeed(speed float64) (uint8, bool) {
	if speed < 0 {
		speed = 0
	}
	if speed <= 255*0.25 {
		return uint8(math.Round(speed / 0.25)), false
	}
	return uint8(clamp(math.Round((speed-255*0.25)/0.75), 0, 254)), true
}

// EncodeAltitude is the inverse of DecodeAltitude.
func EncodeAltitude(alt float64) uint16 {
	return uint16(clamp(math.Round((alt+1000)*2), 0, math.MaxUint16))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
