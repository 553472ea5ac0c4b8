package mock

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
	"github.com/lcalzada-xor/ridwatch/internal/geo"
)

// DefaultInterval is the broadcast period of every simulated drone.
const DefaultInterval = time.Second

// Simulator is a transport that replays a generated fleet.
type Simulator struct {
	gen      *DataGenerator
	clock    clock.Clock
	interval time.Duration
	scenario string
	stop     chan struct{}
	stopOnce sync.Once
}

var _ ports.Transport = (*Simulator)(nil)

// NewSimulator creates a simulator for scenario around observer.
func NewSimulator(scenario string, observer geo.Location, clk clock.Clock, interval time.Duration) *Simulator {
	if clk == nil {
		clk = clock.Real{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if scenario == "" {
		scenario = "basic"
	}
	gen := NewDataGenerator(observer, 0)
	gen.GenerateScenario(scenario)
	return &Simulator{gen: gen, clock: clk, interval: interval, scenario: scenario, stop: make(chan struct{})}
}

func (s *Simulator) Name() string { return "mock" }

// Scenario returns the active scenario name.
func (s *Simulator) Scenario() string { return s.scenario }

// Tick moves the fleet once and emits one pack per drone.
func (s *Simulator) Tick(sink ports.FrameSink) {
	now := s.clock.Now()
	s.gen.Step(s.interval, now)
	for _, d := range s.gen.Drones() {
		sink.OnRawFrame(d.Frames(now), d.Meta())
	}
}

// Start ticks until ctx is done or Close is called.
func (s *Simulator) Start(ctx context.Context, sink ports.FrameSink) error {
	slog.Info("simulator started", "scenario", s.scenario, "drones", len(s.gen.Drones()))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.Tick(sink)
		}
	}
}

// Close stops Start.
func (s *Simulator) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// bearingTo is a flat-earth bearing, good enough to steer drones home.
func bearingTo(from, to geo.Location) float64 {
	north := to.Latitude - from.Latitude
	east := (to.Longitude - from.Longitude) * math.Cos(from.Latitude*math.Pi/180)
	deg := math.Atan2(east, north) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
