package decoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// Extra keys carried from structured feeds into MessageRecord.Extra.
const (
	ExtraHomeLatitude    = "home_latitude"
	ExtraHomeLongitude   = "home_longitude"
	ExtraSpoofConfidence = "spoof_confidence"
	ExtraSpoofReason     = "spoof_reason"
)

var (
	leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	relativeTime  = regexp.MustCompile(`^\s*(?:(\d+(?:\.\d+)?)\s*h)?\s*(?:(\d+(?:\.\d+)?)\s*min)?\s*(?:(\d+(?:\.\d+)?)\s*s)?\s*$`)
)

// sectionKinds maps normalized section names to message kinds.
var sectionKinds = map[string]domain.MessageKind{
	"basic_id":        domain.KindBasicID,
	"basicid":         domain.KindBasicID,
	"location_vector": domain.KindLocationVector,
	"location":        domain.KindLocationVector,
	"self_id":         domain.KindSelfID,
	"selfid":          domain.KindSelfID,
	"system":          domain.KindSystem,
	"operator_id":     domain.KindOperatorID,
	"operatorid":      domain.KindOperatorID,
	"authentication":  domain.KindAuthentication,
	"auth":            domain.KindAuthentication,
}

// DecodeStructured parses a pre-decoded record bag. Two shapes are accepted:
// an object keyed by section name, or an array of single-key section wrappers.
// "mac"/"rssi" fields override the transport metadata. Top-level values (or
// wrappers) apply to the whole bag; without them the first section carrying one
// supplies it. A section's own value always wins for that section's record.
func (d *Decoder) DecodeStructured(bag any, meta Meta) ([]domain.MessageRecord, error) {
	sections, err := collectSections(bag)
	if err != nil {
		return nil, err
	}

	topAddr, topRSSI, topHasRSSI := linkFields(sections.top)
	if topAddr == "" || !topHasRSSI {
		for _, sec := range sections.ordered {
			addr, rssi, ok := linkFields(sec.fields)
			if topAddr == "" && addr != "" {
				topAddr = addr
			}
			if !topHasRSSI && ok {
				topRSSI, topHasRSSI = rssi, true
			}
		}
	}
	if topAddr != "" {
		meta.Address = topAddr
	}
	if topHasRSSI {
		meta.RSSI = topRSSI
	}
	if meta.Address == "" {
		return nil, fmt.Errorf("structured record without address: %w", domain.ErrMalformedFrame)
	}

	extra := collectExtra(sections.top)
	now := d.clock.Now()

	var (
		records []domain.MessageRecord
		errs    []error
	)
	for _, sec := range sections.ordered {
		address, rssi := meta.Address, meta.RSSI
		addr, r, ok := linkFields(sec.fields)
		if addr != "" {
			address = addr
		}
		if ok {
			rssi = r
		}

		payload, err := structuredPayload(sec.kind, sec.fields, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("section %s: %w", sec.kind, err))
			continue
		}

		for k, v := range collectExtra(sec.fields) {
			if extra == nil {
				extra = make(map[string]string)
			}
			extra[k] = v
		}

		records = append(records, domain.MessageRecord{
			Kind:       sec.kind,
			Address:    address,
			RSSI:       rssi,
			Version:    stringField(sec.fields, "version", "protocol_version"),
			Transport:  meta.Transport,
			ReceivedAt: now,
			Network:    meta.Network,
			Payload:    payload,
		})
	}

	// Extra applies to every record of the bag, so attach it after all sections are seen.
	if len(extra) > 0 {
		for i := range records {
			records[i].Extra = extra
		}
	}
	return records, errors.Join(errs...)
}

// linkFields reads the transport address and RSSI carried by a field map.
func linkFields(fields map[string]any) (address string, rssi int, hasRSSI bool) {
	for key, val := range fields {
		switch key {
		case "mac", "address", "mac_address":
			if s, ok := val.(string); ok && strings.TrimSpace(s) != "" {
				address = strings.ToUpper(strings.TrimSpace(s))
			}
		case "rssi":
			if f, ok := ParseNumber(val); ok {
				rssi, hasRSSI = int(math.Round(f)), true
			}
		}
	}
	return address, rssi, hasRSSI
}

// DecodeStructuredJSON is DecodeStructured over raw JSON text.
func (d *Decoder) DecodeStructuredJSON(data []byte, meta Meta) ([]domain.MessageRecord, error) {
	var bag any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&bag); err != nil {
		return nil, fmt.Errorf("structured json: %v: %w", err, domain.ErrMalformedFrame)
	}
	return d.DecodeStructured(bag, meta)
}

type section struct {
	kind   domain.MessageKind
	fields map[string]any
}

type sectionSet struct {
	top     map[string]any
	ordered []section
}

func collectSections(bag any) (sectionSet, error) {
	set := sectionSet{top: make(map[string]any)}

	add := func(name string, val any) {
		key := normalizeKey(name)
		if kind, ok := sectionKinds[key]; ok {
			if m, ok := val.(map[string]any); ok {
				set.ordered = append(set.ordered, section{kind: kind, fields: normalizeFields(m)})
				return
			}
		}
		set.top[key] = val
	}

	switch v := bag.(type) {
	case map[string]any:
		for _, name := range sortedKeys(v) {
			add(name, v[name])
		}
	case []any:
		for i, item := range v {
			wrapper, ok := item.(map[string]any)
			if !ok {
				return set, fmt.Errorf("element %d is %T, want object: %w", i, item, domain.ErrMalformedFrame)
			}
			for _, name := range sortedKeys(wrapper) {
				add(name, wrapper[name])
			}
		}
	default:
		return set, fmt.Errorf("unsupported structured record %T: %w", bag, domain.ErrMalformedFrame)
	}

	// Identity-bearing sections go first so later sections of the same bag resolve to it.
	sort.SliceStable(set.ordered, func(i, j int) bool {
		return sectionRank(set.ordered[i].kind) < sectionRank(set.ordered[j].kind)
	})
	return set, nil
}

func sectionRank(k domain.MessageKind) int {
	switch k {
	case domain.KindBasicID:
		return 0
	case domain.KindSelfID:
		return 1
	default:
		return 2
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func structuredPayload(kind domain.MessageKind, f map[string]any, now time.Time) (domain.Payload, error) {
	switch kind {
	case domain.KindBasicID:
		id := stringField(f, "id", "ua_id", "uas_id", "serial_number")
		if id == "" {
			return nil, fmt.Errorf("missing id: %w", domain.ErrMalformedFrame)
		}
		return domain.BasicID{
			IDType: stringField(f, "id_type"),
			UAType: stringField(f, "ua_type"),
			ID:     strings.TrimSpace(id),
		}, nil

	case domain.KindLocationVector:
		lat, okLat := numberField(f, "latitude", "lat")
		lng, okLng := numberField(f, "longitude", "lon", "lng")
		valid := okLat && okLng && domain.ValidCoordinate(lat, lng)
		if !valid {
			lat, lng = 0, 0
		}
		lv := domain.LocationVector{
			Status:             stringField(f, "status", "operational_status"),
			HeightType:         stringField(f, "height_type"),
			Latitude:           lat,
			Longitude:          lng,
			PositionValid:      valid,
			VerticalAccuracy:   stringField(f, "vertical_accuracy"),
			HorizontalAccuracy: stringField(f, "horizontal_accuracy"),
			BaroAccuracy:       stringField(f, "baro_accuracy", "baro_altitude_accuracy"),
			SpeedAccuracy:      stringField(f, "speed_accuracy"),
		}
		lv.Direction, _ = numberField(f, "direction", "heading", "track_direction")
		lv.SpeedHorizontal, _ = numberField(f, "speed_horizontal", "speed", "horizontal_speed")
		lv.SpeedVertical, _ = numberField(f, "speed_vertical", "vertical_speed")
		lv.AltitudePressure, _ = numberField(f, "altitude_pressure", "pressure_altitude")
		lv.AltitudeGeodetic, _ = numberField(f, "altitude_geodetic", "geodetic_altitude", "altitude")
		lv.Height, _ = numberField(f, "height", "height_agl")
		lv.TimestampAccuracy, _ = numberField(f, "timestamp_accuracy")
		lv.Timestamp = structuredTimestamp(f["timestamp"], now)
		return lv, nil

	case domain.KindSelfID:
		return domain.SelfID{
			DescriptionType: stringField(f, "description_type", "type"),
			Text:            strings.TrimSpace(stringField(f, "text", "description")),
		}, nil

	case domain.KindSystem:
		lat, okLat := numberField(f, "operator_latitude", "operator_lat")
		lng, okLng := numberField(f, "operator_longitude", "operator_lon", "operator_lng")
		valid := okLat && okLng && domain.ValidCoordinate(lat, lng)
		if !valid {
			lat, lng = 0, 0
		}
		sys := domain.System{
			OperatorLocationType: stringField(f, "operator_location_type"),
			ClassificationType:   stringField(f, "classification_type"),
			OperatorLatitude:     lat,
			OperatorLongitude:    lng,
			OperatorValid:        valid,
			Category:             stringField(f, "category", "ua_category"),
			Class:                stringField(f, "class", "ua_class"),
		}
		if n, ok := numberField(f, "area_count"); ok {
			sys.AreaCount = int(n)
		}
		sys.AreaRadius, _ = numberField(f, "area_radius")
		sys.AreaCeiling, _ = numberField(f, "area_ceiling")
		sys.AreaFloor, _ = numberField(f, "area_floor")
		sys.OperatorAltitude, _ = numberField(f, "operator_altitude", "operator_altitude_geo")
		return sys, nil

	case domain.KindOperatorID:
		return domain.OperatorID{
			IDType: stringField(f, "id_type", "operator_id_type"),
			ID:     strings.TrimSpace(stringField(f, "id", "operator_id")),
		}, nil

	case domain.KindAuthentication:
		auth := domain.Authentication{
			AuthType: stringField(f, "auth_type", "type"),
			Data:     stringField(f, "data", "auth_data"),
		}
		if n, ok := numberField(f, "page"); ok {
			auth.Page = int(n)
		}
		if n, ok := numberField(f, "last_page"); ok {
			auth.LastPage = int(n)
		}
		if n, ok := numberField(f, "length"); ok {
			auth.Length = int(n)
		}
		if n, ok := numberField(f, "timestamp"); ok && n >= 0 {
			auth.Timestamp = uint32(n)
		}
		return auth, nil
	}
	return nil, &domain.FrameError{Kind: kind, Err: domain.ErrUnknownMessageKind}
}

// structuredTimestamp accepts seconds past the hour as a number, or a relative
// age such as "28 min 40.0 s" which is resolved against now.
func structuredTimestamp(v any, now time.Time) domain.Timestamp {
	if s, ok := v.(string); ok {
		if age, ok := ParseRelativeTime(s); ok {
			return domain.Timestamp{
				Minutes:  int(age / time.Minute),
				Seconds:  (age % time.Minute).Seconds(),
				Absolute: now.Add(-age),
			}
		}
	}
	if secs, ok := ParseNumber(v); ok && secs >= 0 {
		return domain.Timestamp{
			Minutes: int(secs) / 60,
			Seconds: secs - float64(int(secs)/60*60),
		}
	}
	return domain.Timestamp{}
}

// ParseRelativeTime parses "1 h 2 min 3.5 s" style durations; every part is optional
// but at least one must be present.
func ParseRelativeTime(s string) (time.Duration, bool) {
	m := relativeTime.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, false
	}
	var total float64
	for i, unit := range []float64{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		f, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, false
		}
		total += f * unit
	}
	return time.Duration(total * float64(time.Second)), true
}

// ParseNumber accepts native numbers or strings with a trailing unit ("0.25 m/s").
func ParseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		tok := leadingNumber.FindString(strings.TrimSpace(n))
		if tok == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(tok, 64)
		return f, err == nil
	}
	return 0, false
}

func numberField(f map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			if n, ok := ParseNumber(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func stringField(f map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := f[k].(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func collectExtra(f map[string]any) map[string]string {
	var extra map[string]string
	set := func(key string, names ...string) {
		if v, ok := numberField(f, names...); ok {
			if extra == nil {
				extra = make(map[string]string)
			}
			extra[key] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	set(ExtraHomeLatitude, "home_latitude", "home_lat")
	set(ExtraHomeLongitude, "home_longitude", "home_lon", "home_lng")
	set(ExtraSpoofConfidence, "spoof_confidence", "spoofing_confidence")
	if r := stringField(f, "spoof_reason", "spoofing_reason"); r != "" {
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[ExtraSpoofReason] = r
	}
	return extra
}

func normalizeFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[normalizeKey(k)] = v
	}
	return out
}

// normalizeKey maps "Location/Vector", "Self-ID" and "UA Type" style keys to snake case.
func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer(" ", "_", "-", "_", "/", "_", ".", "_").Replace(k)
	for strings.Contains(k, "__") {
		k = strings.ReplaceAll(k, "__", "_")
	}
	return strings.Trim(k, "_")
}
