package storage

import (
	"encoding/json"
	"log/slog"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// sightingExtras holds the nested parts of a sighting that have no column of their own.
type sightingExtras struct {
	Vector     domain.Vector           `json:"vector"`
	Operator   *domain.Position        `json:"operator,omitempty"`
	Home       *domain.Position        `json:"home,omitempty"`
	BasicID    *domain.BasicID         `json:"basic_id,omitempty"`
	Network    *domain.NetworkContext  `json:"network,omitempty"`
	Spoof      *domain.SpoofAssessment `json:"spoof,omitempty"`
	Provenance []domain.MessageKind    `json:"provenance,omitempty"`
	RawFields  map[string]string       `json:"raw_fields,omitempty"`
	Evidence   map[string]string       `json:"evidence,omitempty"`
}

// toSightingModel converts a domain sighting to its row.
func toSightingModel(s domain.Sighting) SightingModel {
	m := SightingModel{
		Identity:   s.Identity,
		Address:    s.Address,
		Transport:  string(s.Transport),
		Vendor:     s.Vendor,
		RSSI:       s.RSSI,
		OperatorID: s.OperatorID,
		SelfID:     s.SelfID,
		AuthType:   s.AuthType,
		Estimated:  s.Estimated,
		LastSeen:   s.Timestamp,
	}
	if s.Position != nil {
		m.HasPosition = true
		m.Latitude = s.Position.Latitude
		m.Longitude = s.Position.Longitude
		m.Altitude = s.Position.Altitude
	}
	if s.Network != nil {
		m.SSID = s.Network.SSID
	}

	extras := sightingExtras{
		Vector:     s.Vector,
		Operator:   s.Operator,
		Home:       s.Home,
		BasicID:    s.BasicID,
		Network:    s.Network,
		Spoof:      s.Spoof,
		Provenance: s.Kinds(),
		RawFields:  s.RawFields,
		Evidence:   s.Evidence,
	}
	if b, err := json.Marshal(extras); err == nil {
		m.Extras = string(b)
	}
	return m
}

// toSighting converts a row back to a domain sighting.
func toSighting(m SightingModel) domain.Sighting {
	s := domain.Sighting{
		Identity:   m.Identity,
		Address:    m.Address,
		Transport:  domain.Transport(m.Transport),
		Vendor:     m.Vendor,
		RSSI:       m.RSSI,
		OperatorID: m.OperatorID,
		SelfID:     m.SelfID,
		AuthType:   m.AuthType,
		Estimated:  m.Estimated,
		Timestamp:  m.LastSeen,
		Provenance: make(map[domain.MessageKind]bool),
	}
	if m.HasPosition {
		s.Position = &domain.Position{Latitude: m.Latitude, Longitude: m.Longitude, Altitude: m.Altitude}
	}

	if m.Extras == "" {
		return s
	}
	var extras sightingExtras
	if err := json.Unmarshal([]byte(m.Extras), &extras); err != nil {
		slog.Warn("corrupt sighting extras", "identity", m.Identity, "error", err)
		return s
	}
	s.Vector = extras.Vector
	s.Operator = extras.Operator
	s.Home = extras.Home
	s.BasicID = extras.BasicID
	s.Network = extras.Network
	s.Spoof = extras.Spoof
	s.RawFields = extras.RawFields
	s.Evidence = extras.Evidence
	for _, k := range extras.Provenance {
		s.Provenance[k] = true
	}
	return s
}

func toDetectionModel(d domain.Detection) DetectionModel {
	m := DetectionModel{
		ID:          d.ID,
		Type:        string(d.Type),
		Family:      string(d.Type.Family()),
		Subject:     d.Subject,
		Address:     d.Address,
		NetworkName: d.NetworkName,
		Detail:      d.Detail,
		Confidence:  d.Confidence,
		DetectedAt:  d.DetectedAt,
	}
	if len(d.Evidence) > 0 {
		if b, err := json.Marshal(d.Evidence); err == nil {
			m.Evidence = string(b)
		}
	}
	return m
}

func toDetection(m DetectionModel) domain.Detection {
	d := domain.Detection{
		ID:          m.ID,
		Type:        domain.ThreatType(m.Type),
		Subject:     m.Subject,
		Address:     m.Address,
		NetworkName: m.NetworkName,
		Detail:      m.Detail,
		Confidence:  m.Confidence,
		DetectedAt:  m.DetectedAt,
	}
	if m.Evidence != "" {
		_ = json.Unmarshal([]byte(m.Evidence), &d.Evidence)
	}
	return d
}
