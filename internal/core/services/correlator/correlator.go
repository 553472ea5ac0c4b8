package correlator

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/geo"
)

const (
	numShards = 16

	// AddressTTL is how long an address keeps its identity without a refresh.
	AddressTTL = 30 * time.Second
	// ThrottleWindow is the minimum spacing between two emissions of one identity.
	ThrottleWindow = 2 * time.Second

	// EvidenceEstimatedDistance is the evidence key set on estimated positions.
	EvidenceEstimatedDistance = "estimated_distance_m"
)

type addressEntry struct {
	identity string
	lastSeen time.Time
}

type addressShard struct {
	mu      sync.Mutex
	entries map[string]addressEntry
}

type identityState struct {
	sighting domain.Sighting
	lastEmit time.Time
}

type identityShard struct {
	mu     sync.Mutex
	states map[string]*identityState
}

// Options configures a Correlator.
type Options struct {
	Clock clock.Clock

	// EstimatePositions enables RSSI based positions for sightings with no self-reported fix.
	EstimatePositions bool
	Observer          geo.Provider
	PathLoss          geo.PathLoss

	// Bearing returns the bearing used for estimated positions. Defaults to uniform [0,360).
	Bearing func() float64
}

// Correlator merges message records into one canonical sighting per identity.
//
// Addresses and identities live in separate sharded maps. For a given identity the
// merge and the throttle decision happen under that identity's shard lock, which is
// the linearization point; different identities proceed in parallel.
type Correlator struct {
	addresses  []*addressShard
	identities []*identityShard
	opts       Options
}

// New creates a correlator.
func New(opts Options) *Correlator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.PathLoss == (geo.PathLoss{}) {
		opts.PathLoss = geo.DefaultPathLoss
	}
	if opts.Bearing == nil {
		opts.Bearing = func() float64 { return rand.Float64() * 360 }
	}

	c := &Correlator{
		addresses:  make([]*addressShard, numShards),
		identities: make([]*identityShard, numShards),
		opts:       opts,
	}
	for i := 0; i < numShards; i++ {
		c.addresses[i] = &addressShard{entries: make(map[string]addressEntry)}
		c.identities[i] = &identityShard{states: make(map[string]*identityState)}
	}
	return c
}

func shardIndex(key string) uint32 {
	hash := uint32(0)
	for i := 0; i < len(key); i++ {
		hash = hash*31 + uint32(key[i])
	}
	return hash % numShards
}

// Ingest merges one record. It returns the emitted sighting and true, or false when the
// record was dropped (zero RSSI, invalid marker) or the identity is inside its throttle window.
func (c *Correlator) Ingest(rec domain.MessageRecord) (domain.Sighting, bool) {
	if rec.RSSI == 0 {
		return domain.Sighting{}, false
	}

	now := c.opts.Clock.Now()
	c.Sweep(now)

	identity := c.resolveIdentity(rec, now)
	if strings.Contains(strings.ToUpper(identity), domain.InvalidIdentityMarker) {
		return domain.Sighting{}, false
	}

	out, emit := c.mergeAndThrottle(identity, rec, now)
	if !emit {
		return domain.Sighting{}, false
	}

	c.estimatePosition(&out)
	return out, true
}

// resolveIdentity extracts an identity from BasicID/SelfID records, or maps the
// transport address to a previously learned one. Misses fall back to a synthetic identity.
func (c *Correlator) resolveIdentity(rec domain.MessageRecord, now time.Time) string {
	var candidate string
	switch p := rec.Payload.(type) {
	case domain.BasicID:
		candidate = strings.TrimSpace(p.ID)
	case domain.SelfID:
		candidate = domain.SelfIDCandidate(p.Text)
	}

	if candidate != "" {
		if strings.Contains(candidate, domain.InvalidIdentityMarker) {
			return candidate
		}
		if err := domain.ValidateIdentity(candidate); err == nil {
			if rec.Address != "" {
				c.remember(rec.Address, candidate, now)
			}
			return candidate
		}
	}

	if id, err := c.Lookup(rec.Address); err == nil {
		return id
	}
	return domain.SyntheticIdentityPrefix + rec.Address
}

func (c *Correlator) remember(address, identity string, now time.Time) {
	shard := c.addresses[shardIndex(address)]
	shard.mu.Lock()
	shard.entries[address] = addressEntry{identity: identity, lastSeen: now}
	shard.mu.Unlock()
}

// Lookup returns the identity currently mapped to address. Entries older than
// AddressTTL report ErrStaleAddressMapping even before the sweep removes them.
func (c *Correlator) Lookup(address string) (string, error) {
	shard := c.addresses[shardIndex(address)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	e, ok := shard.entries[address]
	if !ok || c.opts.Clock.Now().Sub(e.lastSeen) > AddressTTL {
		return "", fmt.Errorf("address %s: %w", address, domain.ErrStaleAddressMapping)
	}
	return e.identity, nil
}

// Sweep drops address mappings older than AddressTTL. Shards are locked one at a time
// so concurrent ingests only wait on the shard being swept.
func (c *Correlator) Sweep(now time.Time) int {
	removed := 0
	for _, shard := range c.addresses {
		shard.mu.Lock()
		for addr, e := range shard.entries {
			if now.Sub(e.lastSeen) > AddressTTL {
				delete(shard.entries, addr)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

func (c *Correlator) mergeAndThrottle(identity string, rec domain.MessageRecord, now time.Time) (domain.Sighting, bool) {
	shard := c.identities[shardIndex(identity)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	st, ok := shard.states[identity]
	if !ok {
		st = &identityState{sighting: domain.Sighting{
			Identity:   identity,
			Provenance: make(map[domain.MessageKind]bool),
		}}
		shard.states[identity] = st
	}

	merge(&st.sighting, rec, now)

	if !st.lastEmit.IsZero() && now.Sub(st.lastEmit) < ThrottleWindow {
		return domain.Sighting{}, false
	}
	st.lastEmit = now
	return st.sighting.Clone(), true
}

// estimatePosition synthesizes a position on the emitted copy only; the stored
// sighting keeps whatever the aircraft reported.
func (c *Correlator) estimatePosition(s *domain.Sighting) {
	if !c.opts.EstimatePositions || s.Position != nil || c.opts.Observer == nil {
		return
	}
	origin, ok := c.opts.Observer.GetLocation()
	if !ok {
		return
	}

	dist := c.opts.PathLoss.Distance(s.RSSI)
	dest := geo.Destination(origin, c.opts.Bearing(), dist)

	s.Position = &domain.Position{Latitude: dest.Latitude, Longitude: dest.Longitude}
	s.Estimated = true
	if s.Evidence == nil {
		s.Evidence = make(map[string]string)
	}
	s.Evidence[EvidenceEstimatedDistance] = fmt.Sprintf("%.1f", dist)
}

// Get returns the stored sighting for an identity.
func (c *Correlator) Get(identity string) (domain.Sighting, bool) {
	shard := c.identities[shardIndex(identity)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	st, ok := shard.states[identity]
	if !ok {
		return domain.Sighting{}, false
	}
	return st.sighting.Clone(), true
}

// Sightings returns a copy of every stored sighting.
func (c *Correlator) Sightings() []domain.Sighting {
	var all []domain.Sighting
	for _, shard := range c.identities {
		shard.mu.Lock()
		for _, st := range shard.states {
			all = append(all, st.sighting.Clone())
		}
		shard.mu.Unlock()
	}
	return all
}

// PruneSightings removes sightings not updated within ttl.
func (c *Correlator) PruneSightings(ttl time.Duration) int {
	threshold := c.opts.Clock.Now().Add(-ttl)
	deleted := 0
	for _, shard := range c.identities {
		shard.mu.Lock()
		for id, st := range shard.states {
			if st.sighting.Timestamp.Before(threshold) {
				delete(shard.states, id)
				deleted++
			}
		}
		shard.mu.Unlock()
	}
	return deleted
}

// Counts returns the number of live address mappings and identities.
func (c *Correlator) Counts() (addresses, identities int) {
	for _, shard := range c.addresses {
		shard.mu.Lock()
		addresses += len(shard.entries)
		shard.mu.Unlock()
	}
	for _, shard := range c.identities {
		shard.mu.Lock()
		identities += len(shard.states)
		shard.mu.Unlock()
	}
	return addresses, identities
}

// Clear wipes all in-memory state.
func (c *Correlator) Clear() {
	for _, shard := range c.addresses {
		shard.mu.Lock()
		shard.entries = make(map[string]addressEntry)
		shard.mu.Unlock()
	}
	for _, shard := range c.identities {
		shard.mu.Lock()
		shard.states = make(map[string]*identityState)
		shard.mu.Unlock()
	}
}
