package pipeline

import (
	"sync"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

const (
	numShards = 16

	DefaultHistorySize   = 32
	DefaultHistoryWindow = 10 * time.Minute
)

type historyShard struct {
	mu      sync.Mutex
	entries map[string][]domain.Sighting
}

// History keeps a bounded, time-limited ring of recent sightings per identity.
type History struct {
	shards []*historyShard
	size   int
	window time.Duration
}

// NewHistory creates a history store. Non-positive arguments use the defaults.
func NewHistory(size int, window time.Duration) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	h := &History{
		shards: make([]*historyShard, numShards),
		size:   size,
		window: window,
	}
	for i := range h.shards {
		h.shards[i] = &historyShard{entries: make(map[string][]domain.Sighting)}
	}
	return h
}

func (h *History) shard(identity string) *historyShard {
	hash := uint32(0)
	for i := 0; i < len(identity); i++ {
		hash = hash*31 + uint32(identity[i])
	}
	return h.shards[hash%numShards]
}

// Recent returns the identity's sightings newer than the window, oldest first.
func (h *History) Recent(identity string, now time.Time) []domain.Sighting {
	sh := h.shard(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cutoff := now.Add(-h.window)
	var out []domain.Sighting
	for _, s := range sh.entries[identity] {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Add appends a copy of s, dropping the oldest entries beyond the size bound.
func (h *History) Add(s domain.Sighting) {
	sh := h.shard(s.Identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ring := append(sh.entries[s.Identity], s.Clone())
	if len(ring) > h.size {
		ring = append([]domain.Sighting(nil), ring[len(ring)-h.size:]...)
	}
	sh.entries[s.Identity] = ring
}

// Prune drops identities whose newest entry is outside the window.
func (h *History) Prune(now time.Time) int {
	cutoff := now.Add(-h.window)
	removed := 0
	for _, sh := range h.shards {
		sh.mu.Lock()
		for id, ring := range sh.entries {
			if len(ring) == 0 || ring[len(ring)-1].Timestamp.Before(cutoff) {
				delete(sh.entries, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Clear drops every entry.
func (h *History) Clear() {
	for _, sh := range h.shards {
		sh.mu.Lock()
		sh.entries = make(map[string][]domain.Sighting)
		sh.mu.Unlock()
	}
}
