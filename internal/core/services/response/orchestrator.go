package response

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

const (
	numShards = 16

	// DefaultCooldown is the minimum spacing between two responses to one (subject, type).
	DefaultCooldown = 30 * time.Second
	// CooldownTTL is how long a cooldown stamp survives before the cleanup loop drops it.
	CooldownTTL = 24 * time.Hour
)

type cooldownShard struct {
	mu   sync.Mutex
	last map[domain.CooldownKey]time.Time
}

// Options configures an Orchestrator.
type Options struct {
	Clock    clock.Clock
	Cooldown time.Duration
	Scanner  ports.ScanRequester
	Network  ports.NetworkStatus
}

// Orchestrator turns detections into defensive state changes.
//
// Each Respond holds the reset lock shared, so ResetState observes either all
// or none of a response. The cooldown check-then-set runs under the key's shard lock.
type Orchestrator struct {
	resetMu   sync.RWMutex
	cooldowns []*cooldownShard

	mu               sync.Mutex
	blockedAddresses map[string]bool
	blockedNetworks  map[string]bool
	quarantined      map[string]bool
	watched          map[string]bool
	incident         bool

	opts Options
}

// New creates an orchestrator with empty state.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	o := &Orchestrator{
		cooldowns: make([]*cooldownShard, numShards),
		opts:      opts,
	}
	for i := range o.cooldowns {
		o.cooldowns[i] = &cooldownShard{last: make(map[domain.CooldownKey]time.Time)}
	}
	o.clearState()
	return o
}

func shardIndex(key domain.CooldownKey) uint32 {
	hash := uint32(0)
	s := key.Subject + "|" + string(key.Type)
	for i := 0; i < len(s); i++ {
		hash = hash*31 + uint32(s[i])
	}
	return hash % numShards
}

func (o *Orchestrator) clearState() {
	o.blockedAddresses = make(map[string]bool)
	o.blockedNetworks = make(map[string]bool)
	o.quarantined = make(map[string]bool)
	o.watched = make(map[string]bool)
	o.incident = false
}

// Respond applies the tier policy for one detection and returns the actions taken.
// Detections below the moderate tier, or inside their cooldown, produce nothing.
func (o *Orchestrator) Respond(d domain.Detection) []domain.DefensiveAction {
	tier := domain.TierFor(d.Confidence)
	if tier == domain.TierNone {
		return nil
	}

	o.resetMu.RLock()
	defer o.resetMu.RUnlock()

	now := o.opts.Clock.Now()
	if !o.acquire(domain.CooldownKey{Subject: d.Subject, Type: d.Type}, now) {
		return nil
	}

	r := &responder{d: d, tier: tier, now: now}

	o.mu.Lock()
	switch tier {
	case domain.TierEmergency:
		o.emergency(r)
	case domain.TierHigh:
		o.quarantined[d.Subject] = true
		r.add(domain.ActionQuarantine, d.Subject, "high confidence "+string(d.Type))
	case domain.TierModerate:
		o.watched[d.Subject] = true
		r.add(domain.ActionWatch, d.Subject, "moderate confidence "+string(d.Type))
	}
	o.mu.Unlock()

	if tier == domain.TierHigh && o.opts.Scanner != nil {
		target := d.Address
		if target == "" {
			target = d.Subject
		}
		o.opts.Scanner.RequestScan(target, string(d.Type))
		r.add(domain.ActionScanRequest, target, "increase scan rate")
	}
	return r.actions
}

// acquire stamps the cooldown for key and reports whether the caller may act.
func (o *Orchestrator) acquire(key domain.CooldownKey, now time.Time) bool {
	shard := o.cooldowns[shardIndex(key)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if last, ok := shard.last[key]; ok && now.Sub(last) < o.opts.Cooldown {
		return false
	}
	shard.last[key] = now
	return true
}

// emergency runs with o.mu held.
func (o *Orchestrator) emergency(r *responder) {
	d := r.d
	reason := "emergency " + string(d.Type)

	switch {
	case d.Type.IsNetworkDisruption():
		target := d.NetworkName
		if target == "" {
			target = d.Address
		}
		r.add(domain.ActionDisconnect, target, reason)
		o.blockNetwork(r, d.NetworkName, reason)
		o.blockAddress(r, d.Address, reason)

	case d.Type.IsRogueAP():
		o.blockNetwork(r, d.NetworkName, reason)
		o.blockAddress(r, d.Address, reason)
		if d.NetworkName != "" && o.opts.Network != nil && o.opts.Network.IsAssociated(d.NetworkName) {
			r.add(domain.ActionDisconnect, d.NetworkName, reason)
		}

	case d.Type.IsPhysicalImplant():
		o.incident = true
		r.add(domain.ActionIncident, d.Subject, reason)
		r.add(domain.ActionAlert, d.Subject, d.Detail)

	default:
		o.quarantined[d.Subject] = true
		r.add(domain.ActionAlert, d.Subject, d.Detail)
		r.add(domain.ActionQuarantine, d.Subject, reason)
	}
}

func (o *Orchestrator) blockNetwork(r *responder, name, reason string) {
	if name == "" {
		return
	}
	o.blockedNetworks[name] = true
	r.add(domain.ActionBlockNetwork, name, reason)
}

func (o *Orchestrator) blockAddress(r *responder, addr, reason string) {
	if addr == "" {
		return
	}
	o.blockedAddresses[addr] = true
	r.add(domain.ActionBlockAddress, addr, reason)
}

type responder struct {
	d       domain.Detection
	tier    domain.Tier
	now     time.Time
	actions []domain.DefensiveAction
}

func (r *responder) add(kind domain.ActionKind, subject, reason string) {
	r.actions = append(r.actions, domain.DefensiveAction{
		ID:        uuid.New().String(),
		Kind:      kind,
		Subject:   subject,
		Reason:    reason,
		Tier:      r.tier,
		Threat:    r.d.Type,
		Timestamp: r.now,
	})
}

// ResetState clears every block list, the incident flag and all cooldowns in one step.
func (o *Orchestrator) ResetState() domain.DefensiveAction {
	o.resetMu.Lock()
	defer o.resetMu.Unlock()

	for _, shard := range o.cooldowns {
		shard.mu.Lock()
		shard.last = make(map[domain.CooldownKey]time.Time)
		shard.mu.Unlock()
	}

	o.mu.Lock()
	o.clearState()
	o.mu.Unlock()

	return domain.DefensiveAction{
		ID:        uuid.New().String(),
		Kind:      domain.ActionReset,
		Reason:    "defensive state reset",
		Timestamp: o.opts.Clock.Now(),
	}
}

// PruneCooldowns drops cooldown stamps older than ttl and returns how many were removed.
func (o *Orchestrator) PruneCooldowns(ttl time.Duration) int {
	threshold := o.opts.Clock.Now().Add(-ttl)
	removed := 0
	for _, shard := range o.cooldowns {
		shard.mu.Lock()
		for k, last := range shard.last {
			if last.Before(threshold) {
				delete(shard.last, k)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Snapshot returns a copy of the defensive state with sorted lists.
func (o *Orchestrator) Snapshot() domain.DefenseSnapshot {
	o.resetMu.Lock()
	defer o.resetMu.Unlock()

	snap := domain.DefenseSnapshot{TakenAt: o.opts.Clock.Now()}

	o.mu.Lock()
	snap.BlockedAddresses = sortedSet(o.blockedAddresses)
	snap.BlockedNetworks = sortedSet(o.blockedNetworks)
	snap.Quarantined = sortedSet(o.quarantined)
	snap.Watched = sortedSet(o.watched)
	snap.Incident = o.incident
	o.mu.Unlock()

	for _, shard := range o.cooldowns {
		shard.mu.Lock()
		for k, last := range shard.last {
			snap.Cooldowns = append(snap.Cooldowns, domain.CooldownEntry{Key: k, Last: last})
		}
		shard.mu.Unlock()
	}
	sort.Slice(snap.Cooldowns, func(i, j int) bool {
		a, b := snap.Cooldowns[i].Key, snap.Cooldowns[j].Key
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Type < b.Type
	})
	return snap
}

// Restore replaces the current state with a snapshot.
func (o *Orchestrator) Restore(snap domain.DefenseSnapshot) {
	o.resetMu.Lock()
	defer o.resetMu.Unlock()

	o.mu.Lock()
	o.clearState()
	for _, a := range snap.BlockedAddresses {
		o.blockedAddresses[a] = true
	}
	for _, n := range snap.BlockedNetworks {
		o.blockedNetworks[n] = true
	}
	for _, q := range snap.Quarantined {
		o.quarantined[q] = true
	}
	for _, w := range snap.Watched {
		o.watched[w] = true
	}
	o.incident = snap.Incident
	o.mu.Unlock()

	for _, shard := range o.cooldowns {
		shard.mu.Lock()
		shard.last = make(map[domain.CooldownKey]time.Time)
		shard.mu.Unlock()
	}
	for _, e := range snap.Cooldowns {
		shard := o.cooldowns[shardIndex(e.Key)]
		shard.mu.Lock()
		shard.last[e.Key] = e.Last
		shard.mu.Unlock()
	}
}

// IsAddressBlocked reports whether addr is on the block list.
func (o *Orchestrator) IsAddressBlocked(addr string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.blockedAddresses[addr]
}

// IsNetworkBlocked reports whether a network name is on the block list.
func (o *Orchestrator) IsNetworkBlocked(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.blockedNetworks[name]
}

// IsQuarantined reports whether an identity is quarantined.
func (o *Orchestrator) IsQuarantined(subject string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.quarantined[subject]
}

// IsWatched reports whether an identity is on the watch list.
func (o *Orchestrator) IsWatched(subject string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.watched[subject]
}

// Incident reports whether a standing security incident is raised.
func (o *Orchestrator) Incident() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.incident
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
