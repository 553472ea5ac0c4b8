package detection

import (
	"strings"
	"sync"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// Confidence levels used by the static tables.
const (
	ConfidenceFingerprint   = 0.95
	ConfidenceOUIExact      = 0.85
	ConfidenceOUISuspicious = 0.6
	ConfidenceRogueSSID     = 0.75
	ConfidenceSSIDEncoding  = 0.8
	ConfidenceRogueKeyword  = 0.7
)

// Keyword is a normalized token matched against the text fields of a sighting.
type Keyword struct {
	Token      string
	Threat     domain.ThreatType
	Confidence float64
}

// OUIEntry is a known vendor prefix tied to a threat tag.
type OUIEntry struct {
	Vendor string
	Threat domain.ThreatType
}

// Tables holds every lookup the detectors consult. Tables are read-only once built.
type Tables struct {
	Fingerprints map[string]domain.ThreatType
	Keywords     []Keyword
	OUIs         map[string]OUIEntry
	// SuspiciousPrefixes maps prefixes with no registered owner to a threat tag.
	SuspiciousPrefixes map[string]domain.ThreatType
	RogueSSIDs         []string
	RogueKeywords      []Keyword
	// KnockoffBrands maps a brand token to the vendor string a genuine unit resolves to.
	KnockoffBrands map[string]knockoffBrand
	ClonedSerials  map[string]bool
}

type knockoffBrand struct {
	vendor string
	threat domain.ThreatType
}

// FingerprintSeed describes a recorded tool signature before hashing.
type FingerprintSeed struct {
	Address  string
	Kinds    []domain.MessageKind
	AuthType string
	Threat   domain.ThreatType
}

var (
	defaultTables     *Tables
	defaultTablesOnce sync.Once
)

// DefaultTables returns the built-in tables, building them on first use.
func DefaultTables() *Tables {
	defaultTablesOnce.Do(func() {
		defaultTables = BuildTables(defaultFingerprintSeeds)
	})
	return defaultTables
}

// BuildTables assembles the built-in keyword, OUI and SSID tables plus the given fingerprints.
func BuildTables(seeds []FingerprintSeed) *Tables {
	t := &Tables{
		Fingerprints:       make(map[string]domain.ThreatType, len(seeds)),
		Keywords:           normalizeKeywords(toolKeywords),
		OUIs:               make(map[string]OUIEntry, len(knownOUIs)),
		SuspiciousPrefixes: suspiciousPrefixes,
		RogueSSIDs:         make([]string, 0, len(rogueSSIDs)),
		RogueKeywords:      normalizeKeywords(rogueKeywords),
		KnockoffBrands:     knockoffBrands,
		ClonedSerials:      make(map[string]bool, len(clonedSerials)),
	}
	for _, s := range seeds {
		t.Fingerprints[Fingerprint(s.Address, s.Kinds, s.AuthType)] = s.Threat
	}
	for prefix, e := range knownOUIs {
		t.OUIs[normalizeOUI(prefix)] = e
	}
	for _, ssid := range rogueSSIDs {
		t.RogueSSIDs = append(t.RogueSSIDs, normalizeToken(ssid))
	}
	for _, serial := range clonedSerials {
		t.ClonedSerials[strings.ToUpper(serial)] = true
	}
	return t
}

func normalizeKeywords(in []Keyword) []Keyword {
	out := make([]Keyword, 0, len(in))
	for _, k := range in {
		k.Token = normalizeToken(k.Token)
		out = append(out, k)
	}
	return out
}

// normalizeToken lowercases and drops every non alphanumeric rune so
// "Bash Bunny", "bash-bunny" and "BASH_BUNNY" compare equal.
func normalizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var defaultFingerprintSeeds = []FingerprintSeed{
	{Address: "80:E1:26:00:00:01", Kinds: []domain.MessageKind{domain.KindBasicID, domain.KindLocationVector}, AuthType: "", Threat: domain.ThreatFlipperZero},
	{Address: "00:13:37:A5:00:01", Kinds: []domain.MessageKind{domain.KindBasicID, domain.KindLocationVector, domain.KindSystem}, AuthType: "", Threat: domain.ThreatWiFiPineapple},
	{Address: "24:0A:C4:00:00:00", Kinds: []domain.MessageKind{domain.KindBasicID}, AuthType: "none", Threat: domain.ThreatESP32Marauder},
	{Address: "B8:27:EB:00:13:37", Kinds: []domain.MessageKind{domain.KindSelfID}, AuthType: "", Threat: domain.ThreatPwnagotchi},
}

var toolKeywords = []Keyword{
	{"flipper", domain.ThreatFlipperZero, 0.9},
	{"pineapple", domain.ThreatWiFiPineapple, 0.9},
	{"hackrf", domain.ThreatHackRF, 0.9},
	{"proxmark", domain.ThreatProxmark, 0.9},
	{"ubertooth", domain.ThreatUbertooth, 0.9},
	{"pwnagotchi", domain.ThreatPwnagotchi, 0.9},
	{"marauder", domain.ThreatESP32Marauder, 0.85},
	{"yardstick", domain.ThreatYardStick, 0.85},
	{"bladerf", domain.ThreatBladeRF, 0.85},
	{"aircrack", domain.ThreatAircrack, 0.85},
	{"bettercap", domain.ThreatBettercap, 0.85},
	{"wifite", domain.ThreatWifite, 0.85},
	{"airgeddon", domain.ThreatAirgeddon, 0.85},
	{"kismet", domain.ThreatKismetDrone, 0.8},

	{"o.mg cable", domain.ThreatOMGCable, 0.9},
	{"omg cable", domain.ThreatOMGCable, 0.9},
	{"omg plug", domain.ThreatOMGPlug, 0.9},
	{"omg adapter", domain.ThreatOMGAdapter, 0.9},
	{"key croc", domain.ThreatKeyCroc, 0.9},
	{"rubber ducky", domain.ThreatRubberDucky, 0.9},
	{"bash bunny", domain.ThreatBashBunny, 0.9},
	{"lan turtle", domain.ThreatLANTurtle, 0.9},
	{"packet squirrel", domain.ThreatPacketSquirrel, 0.9},
	{"shark jack", domain.ThreatSharkJack, 0.9},
	{"screen crab", domain.ThreatScreenCrab, 0.9},
	{"malduino", domain.ThreatMalduino, 0.85},
	{"keygrabber", domain.ThreatKeyGrabber, 0.85},
	{"usbninja", domain.ThreatUSBNinja, 0.85},

	{"deauther", domain.ThreatESP8266Deauther, 0.85},
	{"wifi duck", domain.ThreatWiFiDuck, 0.85},
	{"wifinugget", domain.ThreatWiFiNugget, 0.85},
	{"dstike", domain.ThreatDSTIKEWatch, 0.8},
	{"maltronics", domain.ThreatMaltronics, 0.8},
	{"portable c2", domain.ThreatPortableC2, 0.8},
}

var knownOUIs = map[string]OUIEntry{
	"00:13:37": {Vendor: "Hak5", Threat: domain.ThreatKnownAttackOUI},
	"00:C0:CA": {Vendor: "ALFA Network", Threat: domain.ThreatKnownAttackOUI},
	"80:E1:26": {Vendor: "Flipper Devices", Threat: domain.ThreatKnownAttackOUI},
	"00:80:2F": {Vendor: "National Instruments (Ettus)", Threat: domain.ThreatSDRVendorOUI},
	"1C:BA:8C": {Vendor: "Great Scott Gadgets", Threat: domain.ThreatSDRVendorOUI},
	"24:0A:C4": {Vendor: "Espressif", Threat: domain.ThreatDevBoardOUI},
	"24:6F:28": {Vendor: "Espressif", Threat: domain.ThreatDevBoardOUI},
	"30:AE:A4": {Vendor: "Espressif", Threat: domain.ThreatDevBoardOUI},
	"84:F3:EB": {Vendor: "Espressif", Threat: domain.ThreatDevBoardOUI},
	"A4:CF:12": {Vendor: "Espressif", Threat: domain.ThreatDevBoardOUI},
	"B8:27:EB": {Vendor: "Raspberry Pi Foundation", Threat: domain.ThreatDevBoardOUI},
	"DC:A6:32": {Vendor: "Raspberry Pi Trading", Threat: domain.ThreatDevBoardOUI},
	"E4:5F:01": {Vendor: "Raspberry Pi Trading", Threat: domain.ThreatDevBoardOUI},
}

var suspiciousPrefixes = map[string]domain.ThreatType{
	"00:00:00": domain.ThreatNullOUI,
	"FF:FF:FF": domain.ThreatBroadcastOUI,
	"DE:AD:BE": domain.ThreatSuspiciousOUI,
	"12:34:56": domain.ThreatSuspiciousOUI,
	"AA:AA:AA": domain.ThreatSuspiciousOUI,
}

var rogueSSIDs = []string{
	"Free WiFi",
	"Free Public WiFi",
	"attwifi",
	"xfinitywifi",
	"Starbucks WiFi",
	"Airport Free WiFi",
	"FreeHotspot",
	"linksys",
	"default",
}

var rogueKeywords = []Keyword{
	{"captive", domain.ThreatCaptivePortal, ConfidenceRogueKeyword},
	{"login portal", domain.ThreatCaptivePortal, ConfidenceRogueKeyword},
	{"karma", domain.ThreatKarma, ConfidenceRogueKeyword},
	{"mana", domain.ThreatMANA, ConfidenceRogueKeyword},
	{"evil twin", domain.ThreatEvilTwin, ConfidenceRogueKeyword},
	{"eviltwin", domain.ThreatEvilTwin, ConfidenceRogueKeyword},
}

var knockoffBrands = map[string]knockoffBrand{
	"dji":    {vendor: "dji", threat: domain.ThreatKnockoffDJI},
	"parrot": {vendor: "parrot", threat: domain.ThreatKnockoffParrot},
	"autel":  {vendor: "autel", threat: domain.ThreatKnockoffAutel},
}

var clonedSerials = []string{
	"1581F0000000000000",
	"000000000000001",
	"TESTSERIAL0001",
	"DJI000000000",
}
