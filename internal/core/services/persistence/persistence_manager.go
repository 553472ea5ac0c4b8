package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
	"github.com/lcalzada-xor/ridwatch/internal/telemetry"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second

	flushTimeout = 10 * time.Second
)

// DefenseSource supplies the defensive state to snapshot after an action.
type DefenseSource interface {
	Defense() domain.DefenseSnapshot
}

type event struct {
	sighting  *domain.Sighting
	detection *domain.Detection
	defense   bool
}

// PersistenceManager batches pipeline output into the store. It is registered as
// a sink, so the hot path only does a non-blocking channel send.
type PersistenceManager struct {
	store     ports.Store
	defense   DefenseSource
	events    chan event
	batchSize int
	interval  time.Duration
	enabled   bool
	mu        sync.RWMutex
	done      chan struct{}
}

// NewPersistenceManager creates a manager with a queue of bufferSize events.
func NewPersistenceManager(store ports.Store, defense DefenseSource, bufferSize int) *PersistenceManager {
	return &PersistenceManager{
		store:     store,
		defense:   defense,
		events:    make(chan event, bufferSize),
		batchSize: DefaultBatchSize,
		interval:  DefaultFlushInterval,
		enabled:   true,
		done:      make(chan struct{}),
	}
}

func (p *PersistenceManager) OnCanonicalSighting(s domain.Sighting) {
	c := s.Clone()
	p.enqueue(event{sighting: &c})
}

func (p *PersistenceManager) OnDetection(d domain.Detection) {
	p.enqueue(event{detection: &d})
}

// OnDefensiveAction schedules a defense snapshot on the next flush.
func (p *PersistenceManager) OnDefensiveAction(domain.DefensiveAction) {
	p.enqueue(event{defense: true})
}

func (p *PersistenceManager) enqueue(ev event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.enabled {
		return
	}
	select {
	case p.events <- ev:
	default:
		telemetry.RecordsDropped.WithLabelValues("persist_queue_full").Inc()
	}
}

// IsEnabled returns the current persistence status.
func (p *PersistenceManager) IsEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetEnabled toggles persistence.
func (p *PersistenceManager) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

type batch struct {
	sightings  map[string]domain.Sighting
	detections []domain.Detection
	defense    bool
}

func newBatch() *batch {
	return &batch{sightings: make(map[string]domain.Sighting)}
}

func (b *batch) add(ev event) {
	switch {
	case ev.sighting != nil:
		b.sightings[ev.sighting.Identity] = *ev.sighting
	case ev.detection != nil:
		b.detections = append(b.detections, *ev.detection)
	case ev.defense:
		b.defense = true
	}
}

func (b *batch) size() int {
	return len(b.sightings) + len(b.detections)
}

func (b *batch) empty() bool {
	return b.size() == 0 && !b.defense
}

// Start runs the flush loop until ctx is done. Remaining events are flushed on exit.
func (p *PersistenceManager) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	buf := newBatch()

	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.drain(buf)
				p.flush(buf)
				return
			case ev := <-p.events:
				buf.add(ev)
				if buf.size() >= p.batchSize {
					p.flush(buf)
					buf = newBatch()
				}
			case <-ticker.C:
				if !buf.empty() {
					p.flush(buf)
					buf = newBatch()
				}
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (p *PersistenceManager) Wait() {
	<-p.done
}

func (p *PersistenceManager) drain(buf *batch) {
	for {
		select {
		case ev := <-p.events:
			buf.add(ev)
		default:
			return
		}
	}
}

func (p *PersistenceManager) flush(buf *batch) {
	if buf.empty() || p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if len(buf.sightings) > 0 {
		sightings := make([]domain.Sighting, 0, len(buf.sightings))
		for _, s := range buf.sightings {
			sightings = append(sightings, s)
		}
		if err := p.store.SaveSightings(ctx, sightings); err != nil {
			slog.Error("failed to save sightings", "count", len(sightings), "error", err)
		}
	}
	if len(buf.detections) > 0 {
		if err := p.store.SaveDetections(ctx, buf.detections); err != nil {
			slog.Error("failed to save detections", "count", len(buf.detections), "error", err)
		}
	}
	if buf.defense && p.defense != nil {
		if err := p.store.SaveDefense(ctx, p.defense.Defense()); err != nil {
			slog.Error("failed to save defense snapshot", "error", err)
		}
	}
}

// Restore loads the saved defense snapshot, if any, into target.
func Restore(ctx context.Context, store ports.Store, target interface {
	RestoreDefense(domain.DefenseSnapshot)
}) (bool, error) {
	snap, ok, err := store.LoadDefense(ctx)
	if err != nil || !ok {
		return false, err
	}
	target.RestoreDefense(snap)
	slog.Info("restored defensive state",
		"blocked_addresses", len(snap.BlockedAddresses),
		"blocked_networks", len(snap.BlockedNetworks),
		"quarantined", len(snap.Quarantined),
		"taken_at", snap.TakenAt)
	return true, nil
}
