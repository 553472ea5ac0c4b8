package domain

import "time"

// Tier is the response level chosen from a detection's confidence.
type Tier int

const (
	TierNone Tier = iota
	TierModerate
	TierHigh
	TierEmergency
)

func (t Tier) String() string {
	switch t {
	case TierModerate:
		return "moderate"
	case TierHigh:
		return "high"
	case TierEmergency:
		return "emergency"
	default:
		return "none"
	}
}

// TierFor maps a confidence to its tier. Thresholds are strict.
func TierFor(confidence float64) Tier {
	switch {
	case confidence > 0.9:
		return TierEmergency
	case confidence > 0.7:
		return TierHigh
	case confidence > 0.5:
		return TierModerate
	default:
		return TierNone
	}
}

// ActionKind names a defensive side effect.
type ActionKind string

const (
	ActionDisconnect   ActionKind = "disconnect"
	ActionBlockNetwork ActionKind = "block_network"
	ActionBlockAddress ActionKind = "block_address"
	ActionQuarantine   ActionKind = "quarantine"
	ActionScanRequest  ActionKind = "scan_request"
	ActionWatch        ActionKind = "watch"
	ActionIncident     ActionKind = "security_incident"
	ActionAlert        ActionKind = "alert"
	ActionReset        ActionKind = "reset"
)

// DefensiveAction is one emitted side effect.
type DefensiveAction struct {
	ID        string     `json:"id"`
	Kind      ActionKind `json:"kind"`
	Subject   string     `json:"subject"`
	Reason    string     `json:"reason"`
	Tier      Tier       `json:"tier"`
	Threat    ThreatType `json:"threat,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// CooldownKey identifies one (subject, threat type) response slot.
type CooldownKey struct {
	Subject string     `json:"subject"`
	Type    ThreatType `json:"type"`
}

// DefenseSnapshot is the persistable defensive state.
type DefenseSnapshot struct {
	BlockedAddresses []string        `json:"blocked_addresses"`
	BlockedNetworks  []string        `json:"blocked_networks"`
	Quarantined      []string        `json:"quarantined"`
	Watched          []string        `json:"watched"`
	Incident         bool            `json:"incident"`
	Cooldowns        []CooldownEntry `json:"cooldowns"`
	TakenAt          time.Time       `json:"taken_at"`
}

// CooldownEntry is one cooldown stamp in a snapshot.
type CooldownEntry struct {
	Key  CooldownKey `json:"key"`
	Last time.Time   `json:"last"`
}
