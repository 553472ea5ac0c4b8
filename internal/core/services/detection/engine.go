package detection

import (
	"sort"
	"sync"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/geo"
)

// DefaultProximityThreshold is the RSSI (dBm) above which a transmitter is considered close.
const DefaultProximityThreshold = -60

// Detector is a pluggable check run against every canonical sighting.
// history holds earlier sightings of the same identity, oldest first.
type Detector interface {
	Name() string
	Detect(s domain.Sighting, history []domain.Sighting) []domain.Detection
}

// Options configures an Engine.
type Options struct {
	ProximityThreshold int
	PathLoss           geo.PathLoss
	// Tables overrides the built-in tables.
	Tables *Tables
}

// Engine scores sightings using the registered detectors. Every detector runs and
// every finding is kept; nothing short-circuits.
type Engine struct {
	detectors []Detector
	mu        sync.RWMutex
}

// NewEngine creates an engine with the default detectors.
func NewEngine(opts Options) *Engine {
	if opts.ProximityThreshold == 0 {
		opts.ProximityThreshold = DefaultProximityThreshold
	}
	if opts.PathLoss == (geo.PathLoss{}) {
		opts.PathLoss = geo.DefaultPathLoss
	}
	if opts.Tables == nil {
		opts.Tables = DefaultTables()
	}

	e := &Engine{}
	e.detectors = []Detector{
		&FingerprintDetector{tables: opts.Tables},
		&KeywordDetector{tables: opts.Tables},
		&OUIDetector{tables: opts.Tables},
		&KnockoffDetector{tables: opts.Tables},
		&NetworkStateDetector{},
		&RogueAPDetector{tables: opts.Tables},
		&SpoofDetector{},
		&RandomizedMACDetector{},
		&RSSIAnomalyDetector{},
		&ProximityDetector{Threshold: opts.ProximityThreshold, PathLoss: opts.PathLoss},
		&ImpossibleTravelDetector{},
	}
	return e
}

// AddDetector registers a new detector plugin.
func (e *Engine) AddDetector(d Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detectors = append(e.detectors, d)
}

// Detectors returns the names of the registered detectors.
func (e *Engine) Detectors() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.detectors))
	for _, d := range e.detectors {
		names = append(names, d.Name())
	}
	return names
}

// Scan runs every detector against the sighting. It does not retain the sighting or history.
func (e *Engine) Scan(s domain.Sighting, history []domain.Sighting) []domain.Detection {
	e.mu.RLock()
	detectors := e.detectors
	e.mu.RUnlock()

	var all []domain.Detection
	for _, d := range detectors {
		all = append(all, d.Detect(s, history)...)
	}
	return all
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
