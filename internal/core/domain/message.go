package domain

import "time"

// MessageKind identifies the broadcast message type carried in the header high nibble.
type MessageKind uint8

const (
	KindBasicID        MessageKind = 0x0
	KindLocationVector MessageKind = 0x1
	KindAuthentication MessageKind = 0x2
	KindSelfID         MessageKind = 0x3
	KindSystem         MessageKind = 0x4
	KindOperatorID     MessageKind = 0x5
	KindMessagePack    MessageKind = 0xF
)

var kindNames = map[MessageKind]string{
	KindBasicID:        "BasicID",
	KindLocationVector: "LocationVector",
	KindAuthentication: "Authentication",
	KindSelfID:         "SelfID",
	KindSystem:         "System",
	KindOperatorID:     "OperatorID",
	KindMessagePack:    "MessagePack",
}

func (k MessageKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Transport names the channel a record arrived on.
type Transport string

const (
	TransportBLE       Transport = "ble"
	TransportWiFi      Transport = "wifi"
	TransportPubSub    Transport = "pubsub"
	TransportMulticast Transport = "multicast"
	TransportSerial    Transport = "serial"
	TransportGRPC      Transport = "grpc"
)

// FrameMeta is what a transport knows about a frame besides its bytes.
type FrameMeta struct {
	Address   string
	RSSI      int
	Transport Transport
	Network   *NetworkContext
}

// MessageRecord is one decoded broadcast message. Records are never mutated after decoding.
type MessageRecord struct {
	Kind       MessageKind     `json:"kind"`
	Address    string          `json:"address"`
	RSSI       int             `json:"rssi"`
	Version    string          `json:"version"`
	Transport  Transport       `json:"transport,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Network    *NetworkContext `json:"network,omitempty"`
	Payload    Payload         `json:"payload"`

	// Extra holds transport-specific fields that have no typed home, for example
	// the upstream spoofing assessment of a structured feed.
	Extra map[string]string `json:"extra,omitempty"`
}

// Payload is implemented by the kind-specific message bodies.
type Payload interface {
	MessageKind() MessageKind
}

// BasicID carries the aircraft identity.
type BasicID struct {
	IDType string `json:"id_type"`
	UAType string `json:"ua_type"`
	ID     string `json:"id"`
}

func (BasicID) MessageKind() MessageKind { return KindBasicID }

// LocationVector carries position and movement.
type LocationVector struct {
	Status             string    `json:"status"`
	HeightType         string    `json:"height_type"`
	Direction          float64   `json:"direction"`
	SpeedHorizontal    float64   `json:"speed_horizontal"`
	SpeedVertical      float64   `json:"speed_vertical"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	PositionValid      bool      `json:"position_valid"`
	AltitudePressure   float64   `json:"altitude_pressure"`
	AltitudeGeodetic   float64   `json:"altitude_geodetic"`
	Height             float64   `json:"height"`
	VerticalAccuracy   string    `json:"vertical_accuracy"`
	HorizontalAccuracy string    `json:"horizontal_accuracy"`
	BaroAccuracy       string    `json:"baro_accuracy"`
	SpeedAccuracy      string    `json:"speed_accuracy"`
	Timestamp          Timestamp `json:"timestamp"`
	TimestampAccuracy  float64   `json:"timestamp_accuracy"`
}

func (LocationVector) MessageKind() MessageKind { return KindLocationVector }

// Timestamp is the tenth-of-a-second offset past the hour, split into minutes and seconds.
// Absolute is set when the source supplied a relative age that was resolved against the clock.
type Timestamp struct {
	Minutes  int       `json:"minutes"`
	Seconds  float64   `json:"seconds"`
	Absolute time.Time `json:"absolute,omitempty"`
}

// SelfID carries a free-text operator description.
type SelfID struct {
	DescriptionType string `json:"description_type"`
	Text            string `json:"text"`
}

func (SelfID) MessageKind() MessageKind { return KindSelfID }

// System carries operator location and operating area.
type System struct {
	OperatorLocationType string  `json:"operator_location_type"`
	ClassificationType   string  `json:"classification_type"`
	OperatorLatitude     float64 `json:"operator_latitude"`
	OperatorLongitude    float64 `json:"operator_longitude"`
	OperatorValid        bool    `json:"operator_valid"`
	AreaCount            int     `json:"area_count"`
	AreaRadius           float64 `json:"area_radius"`
	AreaCeiling          float64 `json:"area_ceiling"`
	AreaFloor            float64 `json:"area_floor"`
	Category             string  `json:"category,omitempty"`
	Class                string  `json:"class,omitempty"`
	OperatorAltitude     float64 `json:"operator_altitude,omitempty"`
}

func (System) MessageKind() MessageKind { return KindSystem }

// OperatorID carries the registered operator identity.
type OperatorID struct {
	IDType string `json:"id_type"`
	ID     string `json:"id"`
}

func (OperatorID) MessageKind() MessageKind { return KindOperatorID }

// Authentication carries one page of an authentication exchange. Data is opaque hex.
type Authentication struct {
	AuthType  string `json:"auth_type"`
	Page      int    `json:"page"`
	LastPage  int    `json:"last_page"`
	Length    int    `json:"length"`
	Timestamp uint32 `json:"timestamp"`
	Data      string `json:"data"`
}

func (Authentication) MessageKind() MessageKind { return KindAuthentication }
