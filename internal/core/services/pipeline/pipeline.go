package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/correlator"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/decoder"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/detection"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/response"
	"github.com/lcalzada-xor/ridwatch/internal/telemetry"
)

const (
	// DefaultSightingTTL is how long an identity is kept after its last record.
	DefaultSightingTTL = 10 * time.Minute

	recentDetectionsCap = 500
	vendorLookupTimeout = 200 * time.Millisecond
)

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("pipeline closed")

// Options configures a Pipeline.
type Options struct {
	Clock        clock.Clock
	Decoder      *decoder.Decoder
	Correlator   *correlator.Correlator
	Engine       *detection.Engine
	Orchestrator *response.Orchestrator
	History      *History
	Vendors      ports.VendorResolver
	SightingTTL  time.Duration
}

// Pipeline wires decoder, correlator, detection engine and response orchestrator
// behind the FrameSink contract transports push into.
type Pipeline struct {
	decoder      *decoder.Decoder
	correlator   *correlator.Correlator
	engine       *detection.Engine
	orchestrator *response.Orchestrator
	history      *History
	vendors      ports.VendorResolver
	sinks        *SinkSubject
	clock        clock.Clock
	tracer       trace.Tracer
	sightingTTL  time.Duration

	recentMu sync.Mutex
	recent   []domain.Detection

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// New creates a pipeline. Missing components are built with their defaults.
func New(opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Decoder == nil {
		opts.Decoder = decoder.New(opts.Clock)
	}
	if opts.Correlator == nil {
		opts.Correlator = correlator.New(correlator.Options{Clock: opts.Clock})
	}
	if opts.Engine == nil {
		opts.Engine = detection.NewEngine(detection.Options{})
	}
	if opts.Orchestrator == nil {
		opts.Orchestrator = response.New(response.Options{Clock: opts.Clock})
	}
	if opts.History == nil {
		opts.History = NewHistory(0, 0)
	}
	if opts.SightingTTL <= 0 {
		opts.SightingTTL = DefaultSightingTTL
	}

	return &Pipeline{
		decoder:      opts.Decoder,
		correlator:   opts.Correlator,
		engine:       opts.Engine,
		orchestrator: opts.Orchestrator,
		history:      opts.History,
		vendors:      opts.Vendors,
		sinks:        NewSinkSubject(),
		clock:        opts.Clock,
		tracer:       telemetry.Tracer("pipeline"),
		sightingTTL:  opts.SightingTTL,
	}
}

// AddSink registers a downstream sink.
func (p *Pipeline) AddSink(sink ports.Sink) {
	p.sinks.AddSink(sink)
}

// enter registers an in-flight call; false once the pipeline is closed.
func (p *Pipeline) enter() bool {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	return true
}

// OnRawFrame decodes and processes one binary frame.
func (p *Pipeline) OnRawFrame(frame []byte, meta domain.FrameMeta) {
	if !p.enter() {
		return
	}
	defer p.wg.Done()

	ctx, span := p.tracer.Start(context.Background(), "OnRawFrame",
		trace.WithAttributes(
			attribute.String("transport", string(meta.Transport)),
			attribute.String("address", meta.Address),
			attribute.Int("frame.size", len(frame)),
		))
	defer span.End()

	telemetry.FramesReceived.WithLabelValues(string(meta.Transport), "binary").Inc()

	recs, err := p.decoder.DecodeWithMeta(frame, meta)
	if err != nil {
		p.decodeFailed(span, meta, err)
	}
	for _, rec := range recs {
		p.process(ctx, rec)
	}
}

// OnStructuredRecord decodes and processes one key/value bag.
func (p *Pipeline) OnStructuredRecord(bag any, meta domain.FrameMeta) {
	if !p.enter() {
		return
	}
	defer p.wg.Done()

	ctx, span := p.tracer.Start(context.Background(), "OnStructuredRecord",
		trace.WithAttributes(attribute.String("transport", string(meta.Transport))))
	defer span.End()

	telemetry.FramesReceived.WithLabelValues(string(meta.Transport), "structured").Inc()

	recs, err := p.decoder.DecodeStructured(bag, meta)
	if err != nil {
		p.decodeFailed(span, meta, err)
	}
	for _, rec := range recs {
		p.process(ctx, rec)
	}
}

// OnError records a transport failure.
func (p *Pipeline) OnError(source string, err error) {
	telemetry.TransportErrors.WithLabelValues(source).Inc()
	slog.Warn("transport error", "source", source, "error", err)
}

func (p *Pipeline) decodeFailed(span trace.Span, meta domain.FrameMeta, err error) {
	reason := "malformed"
	if errors.Is(err, domain.ErrUnknownMessageKind) {
		reason = "unknown_kind"
	}
	telemetry.DecodeErrors.WithLabelValues(string(meta.Transport), reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	slog.Warn("skipping frame", "address", meta.Address, "transport", meta.Transport, "error", err)
}

// process runs one record through correlation, detection and response. A panic
// here is confined to this record.
func (p *Pipeline) process(ctx context.Context, rec domain.MessageRecord) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic processing record", "address", rec.Address, "kind", rec.Kind, "panic", r)
		}
	}()

	telemetry.RecordsDecoded.WithLabelValues(rec.Kind.String()).Inc()

	s, ok := p.correlator.Ingest(rec)
	if !ok {
		telemetry.RecordsDropped.WithLabelValues("suppressed").Inc()
		return
	}

	_, span := p.tracer.Start(ctx, "process", trace.WithAttributes(
		attribute.String("identity", s.Identity),
		attribute.String("kind", rec.Kind.String()),
	))
	defer span.End()

	p.enrich(ctx, &s)

	history := p.history.Recent(s.Identity, s.Timestamp)
	detections := p.engine.Scan(s, history)
	p.history.Add(s)

	telemetry.SightingsEmitted.WithLabelValues(string(s.Transport)).Inc()
	p.sinks.NotifySighting(s)

	span.SetAttributes(attribute.Int("detections", len(detections)))
	for _, d := range detections {
		telemetry.DetectionsTotal.WithLabelValues(string(d.Type), string(d.Type.Family())).Inc()
		p.remember(d)
		p.sinks.NotifyDetection(d)

		for _, a := range p.orchestrator.Respond(d) {
			telemetry.DefensiveActions.WithLabelValues(string(a.Kind)).Inc()
			slog.Info("defensive action", "kind", a.Kind, "subject", a.Subject, "threat", a.Threat, "tier", a.Tier.String())
			p.sinks.NotifyAction(a)
		}
	}
}

func (p *Pipeline) enrich(ctx context.Context, s *domain.Sighting) {
	if p.vendors == nil || s.Vendor != "" || s.Address == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, vendorLookupTimeout)
	defer cancel()

	vendor, err := p.vendors.LookupVendor(ctx, s.Address)
	if err != nil {
		slog.Debug("vendor lookup failed", "address", s.Address, "error", err)
		return
	}
	s.Vendor = vendor
}

func (p *Pipeline) remember(d domain.Detection) {
	p.recentMu.Lock()
	defer p.recentMu.Unlock()
	p.recent = append(p.recent, d)
	if len(p.recent) > recentDetectionsCap {
		p.recent = append([]domain.Detection(nil), p.recent[len(p.recent)-recentDetectionsCap:]...)
	}
}

// RecentDetections returns up to limit of the newest detections, newest first.
func (p *Pipeline) RecentDetections(limit int) []domain.Detection {
	p.recentMu.Lock()
	defer p.recentMu.Unlock()

	if limit <= 0 || limit > len(p.recent) {
		limit = len(p.recent)
	}
	out := make([]domain.Detection, 0, limit)
	for i := len(p.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, p.recent[i])
	}
	return out
}

// Sightings returns the current canonical sighting of every tracked identity.
func (p *Pipeline) Sightings() []domain.Sighting {
	return p.correlator.Sightings()
}

// Defense returns the current defensive state.
func (p *Pipeline) Defense() domain.DefenseSnapshot {
	return p.orchestrator.Snapshot()
}

// RestoreDefense loads a previously saved defensive state.
func (p *Pipeline) RestoreDefense(snap domain.DefenseSnapshot) {
	p.orchestrator.Restore(snap)
}

// ResetDefense clears the defensive state and notifies sinks.
func (p *Pipeline) ResetDefense() error {
	if !p.enter() {
		return ErrClosed
	}
	defer p.wg.Done()

	a := p.orchestrator.ResetState()
	telemetry.DefensiveActions.WithLabelValues(string(a.Kind)).Inc()
	slog.Info("defensive state reset")
	p.sinks.NotifyAction(a)
	return nil
}

// Cleanup runs one pass of every eviction: address mappings, stale identities,
// history rings and expired cooldowns.
func (p *Pipeline) Cleanup() {
	now := p.clock.Now()

	swept := p.correlator.Sweep(now)
	pruned := p.correlator.PruneSightings(p.sightingTTL)
	hist := p.history.Prune(now)
	cooldowns := p.orchestrator.PruneCooldowns(response.CooldownTTL)

	telemetry.Evictions.WithLabelValues("address").Add(float64(swept))
	telemetry.Evictions.WithLabelValues("sighting").Add(float64(pruned))
	telemetry.Evictions.WithLabelValues("history").Add(float64(hist))
	telemetry.Evictions.WithLabelValues("cooldown").Add(float64(cooldowns))

	addrs, ids := p.correlator.Counts()
	telemetry.AddressMappings.Set(float64(addrs))
	telemetry.TrackedIdentities.Set(float64(ids))

	if swept+pruned+hist+cooldowns > 0 {
		slog.Debug("cleanup", "addresses", swept, "sightings", pruned, "history", hist, "cooldowns", cooldowns)
	}
}

// StartCleanupLoop runs Cleanup every interval until ctx is done.
func (p *Pipeline) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Cleanup()
			}
		}
	}()
}

// Close stops accepting input and waits for in-flight records to finish.
func (p *Pipeline) Close() {
	p.closeMu.Lock()
	p.closed = true
	p.closeMu.Unlock()
	p.wg.Wait()
}
