package correlator

import (
	"strconv"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/decoder"
)

// merge folds a record into the sighting, last value wins per field.
func merge(s *domain.Sighting, rec domain.MessageRecord, now time.Time) {
	s.Address = rec.Address
	s.RSSI = rec.RSSI
	s.Timestamp = now
	if !rec.ReceivedAt.IsZero() {
		s.Timestamp = rec.ReceivedAt
	}
	if rec.Transport != "" {
		s.Transport = rec.Transport
	}
	if rec.Network != nil {
		n := rec.Network.Clone()
		s.Network = &n
	}
	if s.Provenance == nil {
		s.Provenance = make(map[domain.MessageKind]bool)
	}
	s.Provenance[rec.Kind] = true
	if rec.Version != "" {
		setRaw(s, "protocol_version", rec.Version)
	}

	switch p := rec.Payload.(type) {
	case domain.BasicID:
		b := p
		s.BasicID = &b
		setRaw(s, "id_type", p.IDType)
		setRaw(s, "ua_type", p.UAType)

	case domain.LocationVector:
		if p.PositionValid {
			s.Position = &domain.Position{
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
				Altitude:  p.AltitudeGeodetic,
			}
		}
		s.Vector = domain.Vector{
			Direction:       p.Direction,
			SpeedHorizontal: p.SpeedHorizontal,
			SpeedVertical:   p.SpeedVertical,
			Height:          p.Height,
			Status:          p.Status,
		}
		setRaw(s, "height_type", p.HeightType)
		setRaw(s, "horizontal_accuracy", p.HorizontalAccuracy)
		setRaw(s, "vertical_accuracy", p.VerticalAccuracy)
		setRaw(s, "speed_accuracy", p.SpeedAccuracy)
		setRaw(s, "altitude_pressure", strconv.FormatFloat(p.AltitudePressure, 'f', 1, 64))
		if !p.Timestamp.Absolute.IsZero() {
			setRaw(s, "reported_at", p.Timestamp.Absolute.UTC().Format(time.RFC3339))
		}

	case domain.SelfID:
		s.SelfID = p.Text
		setRaw(s, "description_type", p.DescriptionType)

	case domain.System:
		if p.OperatorValid {
			s.Operator = &domain.Position{
				Latitude:  p.OperatorLatitude,
				Longitude: p.OperatorLongitude,
				Altitude:  p.OperatorAltitude,
			}
		}
		setRaw(s, "operator_location_type", p.OperatorLocationType)
		setRaw(s, "classification_type", p.ClassificationType)
		setRaw(s, "ua_category", p.Category)
		setRaw(s, "ua_class", p.Class)
		if p.AreaCount > 0 {
			setRaw(s, "area_count", strconv.Itoa(p.AreaCount))
			setRaw(s, "area_radius", strconv.FormatFloat(p.AreaRadius, 'f', 0, 64))
		}

	case domain.OperatorID:
		s.OperatorID = p.ID
		setRaw(s, "operator_id_type", p.IDType)

	case domain.Authentication:
		s.AuthType = p.AuthType
		setRaw(s, "auth_page", strconv.Itoa(p.Page))
		setRaw(s, "auth_last_page", strconv.Itoa(p.LastPage))
	}

	mergeExtra(s, rec.Extra)
}

func mergeExtra(s *domain.Sighting, extra map[string]string) {
	if len(extra) == 0 {
		return
	}

	lat, errLat := strconv.ParseFloat(extra[decoder.ExtraHomeLatitude], 64)
	lng, errLng := strconv.ParseFloat(extra[decoder.ExtraHomeLongitude], 64)
	if errLat == nil && errLng == nil && domain.ValidCoordinate(lat, lng) {
		s.Home = &domain.Position{Latitude: lat, Longitude: lng}
	}

	if v, ok := extra[decoder.ExtraSpoofConfidence]; ok {
		if conf, err := strconv.ParseFloat(v, 64); err == nil {
			s.Spoof = &domain.SpoofAssessment{
				Suspected:  conf > 0,
				Confidence: conf,
				Reason:     extra[decoder.ExtraSpoofReason],
			}
		}
	}
}

func setRaw(s *domain.Sighting, key, value string) {
	if value == "" {
		return
	}
	if s.RawFields == nil {
		s.RawFields = make(map[string]string)
	}
	s.RawFields[key] = value
}
