package mock

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/decoder"
	"github.com/lcalzada-xor/ridwatch/internal/geo"
)

// Vendor OUI prefixes (first 3 bytes of MAC)
var vendorPrefixes = map[string]string{
	"DJI":            "60:60:1F",
	"Parrot":         "90:03:B7",
	"Autel Robotics": "EC:5B:73",
	"Espressif":      "24:0A:C4",
}

var hostilePrefixes = map[string]string{
	"Hak5":         "00:13:37",
	"ALFA Network": "00:C0:CA",
}

var operatorPrefixes = []string{"FIN", "ESP", "DEU", "FRA", "USA"}

// Behavior marks how a simulated drone misbehaves.
type Behavior int

const (
	BehaviorNormal Behavior = iota
	// BehaviorRandomMAC changes the transport address every burst.
	BehaviorRandomMAC
	// BehaviorTeleport jumps its reported position far away every few bursts.
	BehaviorTeleport
	// BehaviorRSSISpike alternates between a far and a very close signal.
	BehaviorRSSISpike
	// BehaviorHostileRadio broadcasts from an attack-tool OUI.
	BehaviorHostileRadio
	// BehaviorDeauthBeacon broadcasts in Wi-Fi beacons from a network under deauth flood.
	BehaviorDeauthBeacon
)

func (b Behavior) String() string {
	switch b {
	case BehaviorNormal:
		return "normal"
	case BehaviorRandomMAC:
		return "random-mac"
	case BehaviorTeleport:
		return "teleport"
	case BehaviorRSSISpike:
		return "rssi-spike"
	case BehaviorHostileRadio:
		return "hostile-radio"
	case BehaviorDeauthBeacon:
		return "deauth-beacon"
	}
	return "unknown"
}

// MockDrone is one simulated aircraft.
type MockDrone struct {
	Serial    string
	Address   string
	Vendor    string
	Operator  string
	Position  geo.Location
	Home      geo.Location
	Altitude  float64
	Heading   float64
	Speed     float64 // m/s
	RSSI      int
	Transport domain.Transport
	Network   *domain.NetworkContext
	Behavior  Behavior
	bursts    int
}

// DataGenerator builds and moves a simulated fleet around an observer.
type DataGenerator struct {
	rand     *rand.Rand
	observer geo.Location
	drones   []*MockDrone
}

// NewDataGenerator creates a generator centered on observer. A zero seed uses the clock.
func NewDataGenerator(observer geo.Location, seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{
		rand:     rand.New(rand.NewSource(seed)),
		observer: observer,
	}
}

// Drones returns the fleet.
func (g *DataGenerator) Drones() []*MockDrone {
	return g.drones
}

// GenerateMAC generates a random MAC address with the vendor's prefix, or a
// random known vendor when vendor is empty.
func (g *DataGenerator) GenerateMAC(vendor string) string {
	prefix, ok := vendorPrefixes[vendor]
	if !ok {
		prefix, ok = hostilePrefixes[vendor]
	}
	if !ok {
		prefix = "60:60:1F"
	}
	return fmt.Sprintf("%s:%02X:%02X:%02X", prefix, g.rand.Intn(256), g.rand.Intn(256), g.rand.Intn(256))
}

// randomMAC returns a locally administered unicast address.
func (g *DataGenerator) randomMAC() string {
	b := make([]byte, 6)
	g.rand.Read(b)
	b[0] = b[0]&0xFC | 0x02
	return strings.ToUpper(fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5]))
}

func (g *DataGenerator) serial(prefix string) string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789"
	var sb strings.Builder
	sb.WriteString(prefix)
	for sb.Len() < 16 {
		sb.WriteByte(alphabet[g.rand.Intn(len(alphabet))])
	}
	return sb.String()
}

// GenerateDrone creates a drone with the given behavior near the observer.
func (g *DataGenerator) GenerateDrone(behavior Behavior) *MockDrone {
	vendors := []string{"DJI", "Parrot", "Autel Robotics"}
	vendor := vendors[g.rand.Intn(len(vendors))]
	if behavior == BehaviorHostileRadio {
		vendor = "Hak5"
	}

	start := geo.Destination(g.observer, g.rand.Float64()*360, 200+g.rand.Float64()*800)
	d := &MockDrone{
		Serial:    g.serial(strings.ToUpper(vendor[:3])),
		Address:   g.GenerateMAC(vendor),
		Vendor:    vendor,
		Operator:  fmt.Sprintf("%s%012d", operatorPrefixes[g.rand.Intn(len(operatorPrefixes))], g.rand.Int63n(1e12)),
		Position:  start,
		Home:      start,
		Altitude:  40 + g.rand.Float64()*80,
		Heading:   g.rand.Float64() * 360,
		Speed:     3 + g.rand.Float64()*12,
		RSSI:      -85 + g.rand.Intn(15),
		Transport: domain.TransportBLE,
		Behavior:  behavior,
	}

	switch behavior {
	case BehaviorRandomMAC:
		d.Address = g.randomMAC()
	case BehaviorDeauthBeacon:
		d.Transport = domain.TransportWiFi
		d.Network = &domain.NetworkContext{
			SSID:           "DRONE-" + d.Serial[len(d.Serial)-4:],
			BSSID:          d.Address,
			Channel:        6,
			Security:       "OPEN",
			BeaconInterval: 100,
		}
	}

	g.drones = append(g.drones, d)
	return d
}

// GenerateScenario creates a fleet. "basic" flies well-behaved drones only;
// "attack" adds one drone per misbehavior.
func (g *DataGenerator) GenerateScenario(scenario string) {
	normal := 3
	if scenario == "busy" {
		normal = 12
	}
	for i := 0; i < normal; i++ {
		g.GenerateDrone(BehaviorNormal)
	}
	if scenario == "attack" {
		for _, b := range []Behavior{BehaviorRandomMAC, BehaviorTeleport, BehaviorRSSISpike, BehaviorHostileRadio, BehaviorDeauthBeacon} {
			g.GenerateDrone(b)
		}
	}
}

// Step advances every drone by dt and applies its behavior.
func (g *DataGenerator) Step(dt time.Duration, now time.Time) {
	for _, d := range g.drones {
		d.bursts++
		d.Heading += g.rand.Float64()*20 - 10
		if d.Heading < 0 {
			d.Heading += 360
		}
		if d.Heading >= 360 {
			d.Heading -= 360
		}
		d.Position = geo.Destination(d.Position, d.Heading, d.Speed*dt.Seconds())
		if geo.Distance(g.observer, d.Position) > 1500 {
			d.Heading = bearingTo(d.Position, g.observer)
		}
		d.RSSI = clampRSSI(d.RSSI + g.rand.Intn(5) - 2)

		switch d.Behavior {
		case BehaviorRandomMAC:
			d.Address = g.randomMAC()
		case BehaviorTeleport:
			if d.bursts%4 == 0 {
				d.Position = geo.Destination(d.Position, g.rand.Float64()*360, 20000)
			}
		case BehaviorRSSISpike:
			if d.bursts%3 == 0 {
				d.RSSI = -40
			} else {
				d.RSSI = -88
			}
		case BehaviorDeauthBeacon:
			if d.Network.DeauthWindow.IsZero() || now.Sub(d.Network.DeauthWindow) > time.Minute {
				d.Network.DeauthWindow = now
				d.Network.DeauthCount = 0
			}
			d.Network.DeauthCount += 8
		}
	}
}

// Frames returns the message pack the drone broadcasts now.
func (d *MockDrone) Frames(now time.Time) []byte {
	tenths := uint16((now.Minute()*60+now.Second())*10 + now.Nanosecond()/1e8)
	return decoder.EncodePack(
		decoder.EncodeBasicID(1, 2, d.Serial),
		decoder.EncodeLocationVector(decoder.Location{
			Status:           2,
			Direction:        d.Heading,
			SpeedHorizontal:  d.Speed,
			Latitude:         d.Position.Latitude,
			Longitude:        d.Position.Longitude,
			AltitudeGeodetic: d.Altitude,
			Height:           d.Altitude,
			TimestampTenths:  tenths,
		}),
		decoder.EncodeOperatorID(0, d.Operator),
		decoder.EncodeSelfID(0, "survey flight"),
		decoder.EncodeSystem(1, d.Home.Latitude, d.Home.Longitude, 1, 0, 0, 0, 1, 2, 0),
	)
}

// Meta returns the transport metadata of the drone's next frame.
func (d *MockDrone) Meta() domain.FrameMeta {
	meta := domain.FrameMeta{Address: d.Address, RSSI: d.RSSI, Transport: d.Transport}
	if d.Network != nil {
		n := *d.Network
		meta.Network = &n
	}
	return meta
}

func clampRSSI(v int) int {
	if v > -30 {
		return -30
	}
	if v < -95 {
		return -95
	}
	return v
}
