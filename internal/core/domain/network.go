package domain

import "time"

// NetworkContext describes the 802.11 network a Wi-Fi carried record was observed on.
type NetworkContext struct {
	SSID           string    `json:"ssid"`
	BSSID          string    `json:"bssid"`
	Channel        int       `json:"channel"`
	Security       string    `json:"security"`
	BeaconInterval int       `json:"beacon_interval"` // time units (1.024 ms)
	Fingerprint    string    `json:"fingerprint,omitempty"`
	// DeauthCount is the deauthentication frames seen on BSSID in the last
	// minute; DeauthWindow is the oldest of them.
	DeauthCount  int       `json:"deauth_count"`
	DeauthWindow time.Time `json:"deauth_window,omitempty"`
	Associated   bool      `json:"associated"`
}

// Clone returns a copy of the context.
func (n NetworkContext) Clone() NetworkContext {
	return n
}

// securityRank orders protection levels so a downgrade can be detected.
var securityRank = map[string]int{
	"OPEN": 0,
	"WEP":  1,
	"WPA":  2,
	"WPA2": 3,
	"WPA3": 4,
}

// SecurityRank returns the relative strength of a security label; unknown labels rank -1.
func SecurityRank(security string) int {
	if r, ok := securityRank[security]; ok {
		return r
	}
	return -1
}
