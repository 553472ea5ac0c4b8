package domain

import (
	"time"

	"github.com/google/uuid"
)

// ThreatType is the closed set of detection tags.
type ThreatType string

// ThreatFamily groups threat types for tiered response handling.
type ThreatFamily string

const (
	FamilyKnownPlatform    ThreatFamily = "known_platform"
	FamilyVendor           ThreatFamily = "oui_vendor"
	FamilyImplant          ThreatFamily = "cable_implant"
	FamilyEmbeddedAttack   ThreatFamily = "embedded_attack"
	FamilyKnockoff         ThreatFamily = "knockoff_vendor"
	FamilyNetworkViolation ThreatFamily = "network_violation"
	FamilyRogueAP          ThreatFamily = "rogue_ap"
	FamilyAdvanced80211    ThreatFamily = "advanced_80211"
	FamilyDrone            ThreatFamily = "drone"
)

// Known attack platforms and tools.
const (
	ThreatFlipperZero    ThreatType = "FLIPPER_ZERO"
	ThreatWiFiPineapple  ThreatType = "WIFI_PINEAPPLE"
	ThreatHackRF         ThreatType = "HACKRF"
	ThreatProxmark       ThreatType = "PROXMARK"
	ThreatUbertooth      ThreatType = "UBERTOOTH"
	ThreatPwnagotchi     ThreatType = "PWNAGOTCHI"
	ThreatESP32Marauder  ThreatType = "ESP32_MARAUDER"
	ThreatYardStick      ThreatType = "YARD_STICK_ONE"
	ThreatBladeRF        ThreatType = "BLADERF"
	ThreatAircrack       ThreatType = "AIRCRACK_NG"
	ThreatBettercap      ThreatType = "BETTERCAP"
	ThreatWifite         ThreatType = "WIFITE"
	ThreatAirgeddon      ThreatType = "AIRGEDDON"
	ThreatKismetDrone    ThreatType = "KISMET_DRONE"
	ThreatFingerprintHit ThreatType = "KNOWN_FINGERPRINT"
)

// OUI and vendor table hits.
const (
	ThreatKnownAttackOUI ThreatType = "KNOWN_ATTACK_OUI"
	ThreatSDRVendorOUI   ThreatType = "SDR_VENDOR_OUI"
	ThreatDevBoardOUI    ThreatType = "DEV_BOARD_OUI"
	ThreatSuspiciousOUI  ThreatType = "SUSPICIOUS_OUI"
	ThreatNullOUI        ThreatType = "NULL_OUI"
	ThreatBroadcastOUI   ThreatType = "BROADCAST_OUI"
)

// Cable and USB implant devices.
const (
	ThreatOMGCable       ThreatType = "OMG_CABLE"
	ThreatOMGPlug        ThreatType = "OMG_PLUG"
	ThreatOMGAdapter     ThreatType = "OMG_ADAPTER"
	ThreatKeyCroc        ThreatType = "KEY_CROC"
	ThreatRubberDucky    ThreatType = "RUBBER_DUCKY"
	ThreatBashBunny      ThreatType = "BASH_BUNNY"
	ThreatLANTurtle      ThreatType = "LAN_TURTLE"
	ThreatPacketSquirrel ThreatType = "PACKET_SQUIRREL"
	ThreatSharkJack      ThreatType = "SHARK_JACK"
	ThreatScreenCrab     ThreatType = "SCREEN_CRAB"
	ThreatMalduino       ThreatType = "MALDUINO"
	ThreatKeyGrabber     ThreatType = "KEYGRABBER"
	ThreatUSBNinja       ThreatType = "USB_NINJA"
)

// Embedded attack boards.
const (
	ThreatESP8266Deauther ThreatType = "ESP8266_DEAUTHER"
	ThreatWiFiDuck        ThreatType = "WIFI_DUCK"
	ThreatWiFiNugget      ThreatType = "WIFI_NUGGET"
	ThreatDSTIKEWatch     ThreatType = "DSTIKE_WATCH"
	ThreatMaltronics      ThreatType = "MALTRONICS_WIFI"
	ThreatPortableC2      ThreatType = "PORTABLE_C2"
)

// Knockoff vendor identities.
const (
	ThreatKnockoffDJI    ThreatType = "KNOCKOFF_DJI"
	ThreatKnockoffParrot ThreatType = "KNOCKOFF_PARROT"
	ThreatKnockoffAutel  ThreatType = "KNOCKOFF_AUTEL"
	ThreatCloneSerial    ThreatType = "CLONED_SERIAL"
	ThreatVendorMismatch ThreatType = "VENDOR_MISMATCH"
)

// Network state violations derived from history.
const (
	ThreatBSSIDChange       ThreatType = "BSSID_CHANGE"
	ThreatSecurityDowngrade ThreatType = "SECURITY_DOWNGRADE"
	ThreatChannelChange     ThreatType = "CHANNEL_CHANGE"
	ThreatFingerprintDrift  ThreatType = "FINGERPRINT_DRIFT"
	ThreatBeaconCadence     ThreatType = "ABNORMAL_BEACON_CADENCE"
	ThreatMultipleTracks    ThreatType = "MULTIPLE_SIGNAL_TRACKS"
	ThreatDeauthFlood       ThreatType = "DEAUTH_FLOOD"
)

// Rogue access point patterns.
const (
	ThreatRogueSSID        ThreatType = "ROGUE_SSID"
	ThreatSSIDNullByte     ThreatType = "SSID_NULL_BYTE"
	ThreatSSIDNonPrintable ThreatType = "SSID_NON_PRINTABLE"
	ThreatSSIDHomoglyph    ThreatType = "SSID_HOMOGLYPH"
	ThreatCaptivePortal    ThreatType = "CAPTIVE_PORTAL"
	ThreatKarma            ThreatType = "KARMA_ATTACK"
	ThreatMANA             ThreatType = "MANA_ATTACK"
	ThreatEvilTwin         ThreatType = "EVIL_TWIN"
)

// Advanced 802.11 attacks.
const (
	ThreatDisassocFlood ThreatType = "DISASSOC_FLOOD"
	ThreatAuthFlood     ThreatType = "AUTH_FLOOD"
	ThreatBeaconFlood   ThreatType = "BEACON_FLOOD"
	ThreatProbeFlood    ThreatType = "PROBE_FLOOD"
	ThreatKRACK         ThreatType = "KRACK"
	ThreatPMKIDHarvest  ThreatType = "PMKID_HARVEST"
	ThreatCSAAttack     ThreatType = "CSA_ATTACK"
	ThreatWPSBruteforce ThreatType = "WPS_BRUTEFORCE"
)

// Drone spoofing and proximity.
const (
	ThreatDroneSpoofing    ThreatType = "DRONE_SPOOFING"
	ThreatMACRandomization ThreatType = "MAC_RANDOMIZATION"
	ThreatRSSIAnomaly      ThreatType = "RSSI_ANOMALY"
	ThreatProximity        ThreatType = "PROXIMITY_THREAT"
	ThreatImpossibleTravel ThreatType = "IMPOSSIBLE_TRAVEL"
)

var threatFamilies = map[ThreatType]ThreatFamily{}

func register(family ThreatFamily, types ...ThreatType) {
	for _, t := range types {
		threatFamilies[t] = family
	}
}

func init() {
	register(FamilyKnownPlatform,
		ThreatFlipperZero, ThreatWiFiPineapple, ThreatHackRF, ThreatProxmark, ThreatUbertooth,
		ThreatPwnagotchi, ThreatESP32Marauder, ThreatYardStick, ThreatBladeRF, ThreatAircrack,
		ThreatBettercap, ThreatWifite, ThreatAirgeddon, ThreatKismetDrone, ThreatFingerprintHit)
	register(FamilyVendor,
		ThreatKnownAttackOUI, ThreatSDRVendorOUI, ThreatDevBoardOUI, ThreatSuspiciousOUI,
		ThreatNullOUI, ThreatBroadcastOUI)
	register(FamilyImplant,
		ThreatOMGCable, ThreatOMGPlug, ThreatOMGAdapter, ThreatKeyCroc, ThreatRubberDucky,
		ThreatBashBunny, ThreatLANTurtle, ThreatPacketSquirrel, ThreatSharkJack, ThreatScreenCrab,
		ThreatMalduino, ThreatKeyGrabber, ThreatUSBNinja)
	register(FamilyEmbeddedAttack,
		ThreatESP8266Deauther, ThreatWiFiDuck, ThreatWiFiNugget, ThreatDSTIKEWatch,
		ThreatMaltronics, ThreatPortableC2)
	register(FamilyKnockoff,
		ThreatKnockoffDJI, ThreatKnockoffParrot, ThreatKnockoffAutel, ThreatCloneSerial,
		ThreatVendorMismatch)
	register(FamilyNetworkViolation,
		ThreatBSSIDChange, ThreatSecurityDowngrade, ThreatChannelChange, ThreatFingerprintDrift,
		ThreatBeaconCadence, ThreatMultipleTracks, ThreatDeauthFlood)
	register(FamilyRogueAP,
		ThreatRogueSSID, ThreatSSIDNullByte, ThreatSSIDNonPrintable, ThreatSSIDHomoglyph,
		ThreatCaptivePortal, ThreatKarma, ThreatMANA, ThreatEvilTwin)
	register(FamilyAdvanced80211,
		ThreatDisassocFlood, ThreatAuthFlood, ThreatBeaconFlood, ThreatProbeFlood, ThreatKRACK,
		ThreatPMKIDHarvest, ThreatCSAAttack, ThreatWPSBruteforce)
	register(FamilyDrone,
		ThreatDroneSpoofing, ThreatMACRandomization, ThreatRSSIAnomaly, ThreatProximity,
		ThreatImpossibleTravel)
}

// Family returns the family the threat belongs to, or "" for unregistered tags.
func (t ThreatType) Family() ThreatFamily {
	return threatFamilies[t]
}

// Valid reports whether t is part of the closed enumeration.
func (t ThreatType) Valid() bool {
	_, ok := threatFamilies[t]
	return ok
}

// ThreatTypes returns every registered threat type.
func ThreatTypes() []ThreatType {
	out := make([]ThreatType, 0, len(threatFamilies))
	for t := range threatFamilies {
		out = append(out, t)
	}
	return out
}

// IsNetworkDisruption reports whether the threat interrupts or downgrades a network.
func (t ThreatType) IsNetworkDisruption() bool {
	switch t {
	case ThreatDeauthFlood, ThreatSecurityDowngrade, ThreatDisassocFlood, ThreatAuthFlood,
		ThreatKRACK, ThreatCSAAttack:
		return true
	}
	return false
}

// IsRogueAP reports whether the threat is an impersonating access point.
func (t ThreatType) IsRogueAP() bool {
	return t.Family() == FamilyRogueAP
}

// IsPhysicalImplant reports whether the threat is a cable or USB implant.
func (t ThreatType) IsPhysicalImplant() bool {
	return t.Family() == FamilyImplant
}

// Detection is one scored finding for a sighting.
type Detection struct {
	ID          string            `json:"id"`
	Type        ThreatType        `json:"type"`
	Subject     string            `json:"subject"`
	Address     string            `json:"address,omitempty"`
	NetworkName string            `json:"network_name,omitempty"`
	Detail      string            `json:"detail"`
	Confidence  float64           `json:"confidence"`
	Evidence    map[string]string `json:"evidence,omitempty"`
	DetectedAt  time.Time         `json:"detected_at"`
}

// NewDetection builds a Detection for a sighting, clamping confidence to [0,1].
func NewDetection(s Sighting, t ThreatType, detail string, confidence float64, evidence map[string]string) Detection {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	d := Detection{
		ID:         uuid.New().String(),
		Type:       t,
		Subject:    s.Identity,
		Address:    s.Address,
		Detail:     detail,
		Confidence: confidence,
		Evidence:   evidence,
		DetectedAt: s.Timestamp,
	}
	if s.Network != nil {
		d.NetworkName = s.Network.SSID
	}
	return d
}
