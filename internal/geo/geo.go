package geo

import (
	"math"
	"sync"
)

const earthRadius = 6371000.0 // meters

// Location represents a geographic coordinate.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Provider defines the interface for obtaining the observer location.
// The boolean is false while no fix is available.
type Provider interface {
	GetLocation() (Location, bool)
}

// StaticProvider implements Provider with a fixed location.
type StaticProvider struct {
	Lat float64
	Lng float64
}

// NewStaticProvider creates a provider that always returns the same location.
func NewStaticProvider(lat, lng float64) *StaticProvider {
	return &StaticProvider{
		Lat: lat,
		Lng: lng,
	}
}

// GetLocation returns the fixed location. A (0,0) location counts as no fix.
func (s *StaticProvider) GetLocation() (Location, bool) {
	if s.Lat == 0 && s.Lng == 0 {
		return Location{}, false
	}
	return Location{
		Latitude:  s.Lat,
		Longitude: s.Lng,
	}, true
}

// MutableProvider holds the last location pushed by an external fix source.
type MutableProvider struct {
	mu  sync.RWMutex
	loc Location
	ok  bool
}

// Update records a new fix.
func (m *MutableProvider) Update(loc Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loc = loc
	m.ok = true
}

// GetLocation returns the last fix, if any.
func (m *MutableProvider) GetLocation() (Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loc, m.ok
}

// PathLoss is a log-distance path-loss model.
type PathLoss struct {
	// RefPower is the received power at 1 m, in dBm.
	RefPower float64
	// Exponent is the environment path-loss exponent (2 for free space).
	Exponent float64
	// MaxDistance caps the estimate, in meters.
	MaxDistance float64
}

// DefaultPathLoss is tuned for Remote ID broadcasts over open terrain.
var DefaultPathLoss = PathLoss{
	RefPower:    -40,
	Exponent:    2.0,
	MaxDistance: 300,
}

// Distance inverts the model: d = 10^((ref - rssi) / (10 n)), capped at MaxDistance.
func (p PathLoss) Distance(rssi int) float64 {
	n := p.Exponent
	if n <= 0 {
		n = 2.0
	}
	d := math.Pow(10, (p.RefPower-float64(rssi))/(10*n))
	if p.MaxDistance > 0 && d > p.MaxDistance {
		return p.MaxDistance
	}
	if d < 0 {
		return 0
	}
	return d
}

// Destination projects from origin along a bearing (degrees from north) for a distance in meters.
func Destination(origin Location, bearing, distance float64) Location {
	lat1 := toRad(origin.Latitude)
	lng1 := toRad(origin.Longitude)
	brng := toRad(bearing)
	ang := distance / earthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(
		math.Sin(brng)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2),
	)

	lngDeg := math.Mod(toDeg(lng2)+540, 360) - 180
	return Location{Latitude: toDeg(lat2), Longitude: lngDeg}
}

// Distance returns the great-circle distance between two locations in meters.
func Distance(a, b Location) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLat := lat2 - lat1
	dLng := toRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
