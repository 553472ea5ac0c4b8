package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// ErrUnknownThreat is returned when an extension names a tag outside the closed set.
var ErrUnknownThreat = errors.New("unknown threat type")

// Extensions are site specific additions merged over the built-in tables.
type Extensions struct {
	Keywords      []KeywordExtension     `json:"keywords"`
	OUIs          []OUIExtension         `json:"ouis"`
	RogueSSIDs    []string               `json:"rogue_ssids"`
	ClonedSerials []string               `json:"cloned_serials"`
	Fingerprints  []FingerprintExtension `json:"fingerprints"`
}

type KeywordExtension struct {
	Token      string            `json:"token"`
	Threat     domain.ThreatType `json:"threat"`
	Confidence float64           `json:"confidence"`
}

type OUIExtension struct {
	Prefix string            `json:"prefix"`
	Vendor string            `json:"vendor"`
	Threat domain.ThreatType `json:"threat"`
}

type FingerprintExtension struct {
	Address  string               `json:"address"`
	Kinds    []domain.MessageKind `json:"kinds"`
	AuthType string               `json:"auth_type"`
	Threat   domain.ThreatType    `json:"threat"`
}

// LoadExtensions reads an extensions file.
func LoadExtensions(path string) (*Extensions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read extensions: %w", err)
	}
	var ext Extensions
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, fmt.Errorf("failed to parse extensions: %w", err)
	}
	return &ext, nil
}

// Apply returns a copy of base with the extensions merged in. base is not modified.
func (e *Extensions) Apply(base *Tables) (*Tables, error) {
	t := base.clone()

	for _, k := range e.Keywords {
		if err := checkThreat(k.Threat); err != nil {
			return nil, fmt.Errorf("keyword %q: %w", k.Token, err)
		}
		token := normalizeToken(k.Token)
		if token == "" {
			continue
		}
		conf := k.Confidence
		if conf <= 0 || conf > 1 {
			conf = ConfidenceRogueKeyword
		}
		t.Keywords = append(t.Keywords, Keyword{Token: token, Threat: k.Threat, Confidence: conf})
	}

	for _, o := range e.OUIs {
		if err := checkThreat(o.Threat); err != nil {
			return nil, fmt.Errorf("oui %q: %w", o.Prefix, err)
		}
		prefix := normalizeOUI(o.Prefix)
		if prefix == "" {
			return nil, fmt.Errorf("oui %q: invalid prefix", o.Prefix)
		}
		t.OUIs[prefix] = OUIEntry{Vendor: o.Vendor, Threat: o.Threat}
	}

	for _, ssid := range e.RogueSSIDs {
		if token := normalizeToken(ssid); token != "" {
			t.RogueSSIDs = append(t.RogueSSIDs, token)
		}
	}

	for _, serial := range e.ClonedSerials {
		if serial = strings.TrimSpace(serial); serial != "" {
			t.ClonedSerials[strings.ToUpper(serial)] = true
		}
	}

	for _, f := range e.Fingerprints {
		if err := checkThreat(f.Threat); err != nil {
			return nil, fmt.Errorf("fingerprint %q: %w", f.Address, err)
		}
		t.Fingerprints[Fingerprint(f.Address, f.Kinds, f.AuthType)] = f.Threat
	}
	return t, nil
}

func checkThreat(t domain.ThreatType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownThreat, t)
	}
	return nil
}

func (t *Tables) clone() *Tables {
	c := &Tables{
		Fingerprints:       make(map[string]domain.ThreatType, len(t.Fingerprints)),
		Keywords:           append([]Keyword(nil), t.Keywords...),
		OUIs:               make(map[string]OUIEntry, len(t.OUIs)),
		SuspiciousPrefixes: t.SuspiciousPrefixes,
		RogueSSIDs:         append([]string(nil), t.RogueSSIDs...),
		RogueKeywords:      t.RogueKeywords,
		KnockoffBrands:     t.KnockoffBrands,
		ClonedSerials:      make(map[string]bool, len(t.ClonedSerials)),
	}
	for k, v := range t.Fingerprints {
		c.Fingerprints[k] = v
	}
	for k, v := range t.OUIs {
		c.OUIs[k] = v
	}
	for k, v := range t.ClonedSerials {
		c.ClonedSerials[k] = v
	}
	return c
}
