package pipeline

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

// SinkSubject fans pipeline output out to registered sinks. Sinks are called
// synchronously and in registration order so each sees events in pipeline order;
// a sink that needs to do I/O queues internally.
type SinkSubject struct {
	sinks []ports.Sink
	mu    sync.RWMutex
}

// NewSinkSubject creates an empty subject.
func NewSinkSubject() *SinkSubject {
	return &SinkSubject{sinks: make([]ports.Sink, 0)}
}

// AddSink registers a new sink.
func (s *SinkSubject) AddSink(sink ports.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// NotifySighting delivers a canonical sighting to every sink.
func (s *SinkSubject) NotifySighting(sighting domain.Sighting) {
	s.each(func(sink ports.Sink) { sink.OnCanonicalSighting(sighting) })
}

// NotifyDetection delivers a detection to every sink.
func (s *SinkSubject) NotifyDetection(d domain.Detection) {
	s.each(func(sink ports.Sink) { sink.OnDetection(d) })
}

// NotifyAction delivers a defensive action to every sink.
func (s *SinkSubject) NotifyAction(a domain.DefensiveAction) {
	s.each(func(sink ports.Sink) { sink.OnDefensiveAction(a) })
}

func (s *SinkSubject) each(fn func(ports.Sink)) {
	s.mu.RLock()
	sinks := s.sinks
	s.mu.RUnlock()

	for _, sink := range sinks {
		notify(sink, fn)
	}
}

// notify isolates one sink so a panicking sink does not starve the others.
func notify(sink ports.Sink, fn func(ports.Sink)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sink panicked", "sink", fmt.Sprintf("%T", sink), "panic", r)
		}
	}()
	fn(sink)
}
