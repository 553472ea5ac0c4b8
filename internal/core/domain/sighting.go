package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

// SyntheticIdentityPrefix marks identities derived from a transport address.
const SyntheticIdentityPrefix = "mac:"

// InvalidIdentityMarker is the reserved marker upstream receivers put in unusable identities.
const InvalidIdentityMarker = "INVALID"

// Position is a WGS84 point with an optional altitude in meters.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude,omitempty"`
}

// ValidCoordinate reports whether lat/lng are in range and not the (0,0) null island.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return false
	}
	return !(lat == 0 && lng == 0)
}

// Vector is the last-known movement of an aircraft.
type Vector struct {
	Direction       float64 `json:"direction"`
	SpeedHorizontal float64 `json:"speed_horizontal"`
	SpeedVertical   float64 `json:"speed_vertical"`
	Height          float64 `json:"height"`
	Status          string  `json:"status,omitempty"`
}

// SpoofAssessment is an upstream receiver's verdict on whether the aircraft is spoofed.
type SpoofAssessment struct {
	Suspected  bool    `json:"suspected"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Sighting is the canonical merged state of one aircraft. One exists per identity; latest wins.
type Sighting struct {
	Identity   string               `json:"identity"`
	Address    string               `json:"address"`
	Position   *Position            `json:"position,omitempty"`
	Vector     Vector               `json:"vector"`
	Operator   *Position            `json:"operator,omitempty"`
	Home       *Position            `json:"home,omitempty"`
	RSSI       int                  `json:"rssi"`
	Provenance map[MessageKind]bool `json:"provenance"`
	RawFields  map[string]string    `json:"raw_fields,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`

	BasicID    *BasicID         `json:"basic_id,omitempty"`
	OperatorID string           `json:"operator_id,omitempty"`
	SelfID     string           `json:"self_id,omitempty"`
	AuthType   string           `json:"auth_type,omitempty"`
	Transport  Transport        `json:"transport,omitempty"`
	Vendor     string           `json:"vendor,omitempty"`
	Network    *NetworkContext  `json:"network,omitempty"`
	Spoof      *SpoofAssessment `json:"spoof,omitempty"`

	// Estimated is set when Position was synthesized from signal strength.
	Estimated bool              `json:"estimated"`
	Evidence  map[string]string `json:"evidence,omitempty"`
}

// IsSynthetic reports whether the identity was derived from the transport address.
func (s Sighting) IsSynthetic() bool {
	return strings.HasPrefix(s.Identity, SyntheticIdentityPrefix)
}

// Kinds returns the provenance set as a sorted slice.
func (s Sighting) Kinds() []MessageKind {
	kinds := make([]MessageKind, 0, len(s.Provenance))
	for k := range s.Provenance {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Clone returns a deep copy so the caller can hand it across goroutines.
func (s Sighting) Clone() Sighting {
	c := s
	if s.Position != nil {
		p := *s.Position
		c.Position = &p
	}
	if s.Operator != nil {
		p := *s.Operator
		c.Operator = &p
	}
	if s.Home != nil {
		p := *s.Home
		c.Home = &p
	}
	if s.BasicID != nil {
		b := *s.BasicID
		c.BasicID = &b
	}
	if s.Network != nil {
		n := s.Network.Clone()
		c.Network = &n
	}
	if s.Spoof != nil {
		sp := *s.Spoof
		c.Spoof = &sp
	}
	c.Provenance = make(map[MessageKind]bool, len(s.Provenance))
	for k, v := range s.Provenance {
		c.Provenance[k] = v
	}
	c.RawFields = cloneStrings(s.RawFields)
	c.Evidence = cloneStrings(s.Evidence)
	return c
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
