package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ridwatch"

var (
	// FramesReceived counts raw and structured inputs handed over by transports
	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of frames received from transport adapters",
		},
		[]string{"transport", "format"},
	)

	// RecordsDecoded counts message records produced by the decoder
	RecordsDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_decoded_total",
			Help:      "Total number of message records decoded",
		},
		[]string{"kind"},
	)

	// DecodeErrors counts frames or sub-frames that failed to decode
	DecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of frame decode failures",
		},
		[]string{"transport", "reason"},
	)

	// RecordsDropped counts records the correlator did not emit
	RecordsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Total number of records not emitted as sightings",
		},
		[]string{"reason"},
	)

	// SightingsEmitted counts canonical sightings delivered to sinks
	SightingsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sightings_emitted_total",
			Help:      "Total number of canonical sightings emitted",
		},
		[]string{"transport"},
	)

	// DetectionsTotal counts detections by threat type and family
	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Total number of detections raised",
		},
		[]string{"type", "family"},
	)

	// DefensiveActions counts defensive actions taken
	DefensiveActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defensive_actions_total",
			Help:      "Total number of defensive actions emitted",
		},
		[]string{"kind"},
	)

	// TransportErrors counts errors reported by transport adapters
	TransportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Total number of transport adapter errors",
		},
		[]string{"source"},
	)

	// AddressMappings tracks live address to identity mappings
	AddressMappings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "address_mappings",
			Help:      "Number of live address to identity mappings",
		},
	)

	// TrackedIdentities tracks identities held by the correlator
	TrackedIdentities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_identities",
			Help:      "Number of identities with a stored sighting",
		},
	)

	// Evictions counts entries removed by the periodic cleanup loops
	Evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Total number of entries removed by cleanup",
		},
		[]string{"store"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		// Register metrics, ignoring errors if already registered
		prometheus.DefaultRegisterer.Register(FramesReceived)
		prometheus.DefaultRegisterer.Register(RecordsDecoded)
		prometheus.DefaultRegisterer.Register(DecodeErrors)
		prometheus.DefaultRegisterer.Register(RecordsDropped)
		prometheus.DefaultRegisterer.Register(SightingsEmitted)
		prometheus.DefaultRegisterer.Register(DetectionsTotal)
		prometheus.DefaultRegisterer.Register(DefensiveActions)
		prometheus.DefaultRegisterer.Register(TransportErrors)
		prometheus.DefaultRegisterer.Register(AddressMappings)
		prometheus.DefaultRegisterer.Register(TrackedIdentities)
		prometheus.DefaultRegisterer.Register(Evictions)
	})
}
