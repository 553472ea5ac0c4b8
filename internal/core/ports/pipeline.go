package ports

import (
	"context"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// FrameSink receives input from transport adapters. Adapters call it from their
// own goroutines; implementations must be safe for concurrent use.
type FrameSink interface {
	// OnRawFrame hands over one binary broadcast frame.
	OnRawFrame(frame []byte, meta domain.FrameMeta)
	// OnStructuredRecord hands over a key/value bag from a decoded feed.
	OnStructuredRecord(bag any, meta domain.FrameMeta)
	// OnError reports a transport level failure. It never stops the pipeline.
	OnError(source string, err error)
}

// Transport is a long running frame producer.
type Transport interface {
	Name() string
	// Start blocks until ctx is cancelled or the source is exhausted.
	Start(ctx context.Context, sink FrameSink) error
	Close() error
}

// Sink receives pipeline output.
type Sink interface {
	OnCanonicalSighting(s domain.Sighting)
	OnDetection(d domain.Detection)
	OnDefensiveAction(a domain.DefensiveAction)
}

// ScanRequester asks the capture layer for a faster scan interval around a
// transmitter address. Subjects without a known address are passed as is.
type ScanRequester interface {
	RequestScan(address, reason string)
}

// NetworkStatus reports whether the host is associated with a network.
type NetworkStatus interface {
	IsAssociated(networkName string) bool
}

// VendorResolver maps a hardware address to its registered vendor.
type VendorResolver interface {
	LookupVendor(ctx context.Context, address string) (string, error)
}

// Store is the persistence boundary for sightings, detections and defensive state.
type Store interface {
	SaveSightings(ctx context.Context, sightings []domain.Sighting) error
	SaveDetections(ctx context.Context, detections []domain.Detection) error
	ListSightings(ctx context.Context, limit int) ([]domain.Sighting, error)
	ListDetections(ctx context.Context, limit int) ([]domain.Detection, error)

	SaveDefense(ctx context.Context, snap domain.DefenseSnapshot) error
	// LoadDefense returns false when no snapshot has been saved yet.
	LoadDefense(ctx context.Context) (domain.DefenseSnapshot, bool, error)

	Close() error
}
