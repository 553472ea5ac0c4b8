package wifi

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Information element tags.
const (
	TagSSID           = 0
	TagSupportedRates = 1
	TagDSParameterSet = 3
	TagHTCapabilities = 45
	TagRSN            = 48
	TagExtendedRates  = 50
	TagVendorSpecific = 221
)

// Remote ID beacons carry the message pack in a vendor IE under the ASD-STAN OUI.
var (
	remoteIDOUI  = []byte{0xFA, 0x0B, 0xBC}
	wpaOUIType   = []byte{0x00, 0x50, 0xF2, 0x01}
	remoteIDType = byte(0x0D)
)

// IterateIEs calls fn for each well-formed element and stops at the first
// element whose length runs past the buffer.
func IterateIEs(data []byte, fn func(id int, val []byte)) {
	offset := 0
	for offset+2 <= len(data) {
		id := int(data[offset])
		length := int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return
		}
		fn(id, data[offset:offset+length])
		offset += length
	}
}

// FindIE returns the first element with the given tag, or nil.
func FindIE(data []byte, tag int) []byte {
	var out []byte
	IterateIEs(data, func(id int, val []byte) {
		if out == nil && id == tag {
			out = val
		}
	})
	return out
}

// ParseSSID returns the SSID and whether it is hidden (absent, empty or all NUL).
func ParseSSID(data []byte) (string, bool) {
	val := FindIE(data, TagSSID)
	if len(val) == 0 {
		return "", true
	}
	if len(bytes.Trim(val, "\x00")) == 0 {
		return "", true
	}
	return string(val), false
}

// ParseChannel reads the DS Parameter Set element.
func ParseChannel(data []byte) int {
	if val := FindIE(data, TagDSParameterSet); len(val) >= 1 {
		return int(val[0])
	}
	return 0
}

// RemoteIDPayloads returns the message packs found in Remote ID vendor elements.
// The element layout is OUI(3) type(1) counter(1) pack.
func RemoteIDPayloads(data []byte) [][]byte {
	var out [][]byte
	IterateIEs(data, func(id int, val []byte) {
		if id != TagVendorSpecific || len(val) < 6 {
			return
		}
		if bytes.Equal(val[:3], remoteIDOUI) && val[3] == remoteIDType {
			out = append(out, val[5:])
		}
	})
	return out
}

// Security classifies the network protection from the RSN and WPA elements and
// the capability privacy bit.
func Security(data []byte, privacy bool) string {
	if rsn := FindIE(data, TagRSN); rsn != nil {
		for _, akm := range akmSuites(rsn) {
			if akm == 8 || akm == 9 || akm == 24 || akm == 25 {
				return "WPA3"
			}
		}
		return "WPA2"
	}

	wpa := false
	IterateIEs(data, func(id int, val []byte) {
		if id == TagVendorSpecific && len(val) >= 4 && bytes.Equal(val[:4], wpaOUIType) {
			wpa = true
		}
	})
	switch {
	case wpa:
		return "WPA"
	case privacy:
		return "WEP"
	default:
		return "OPEN"
	}
}

// akmSuites returns the suite type bytes of the RSN AKM list.
func akmSuites(rsn []byte) []byte {
	offset := 2 + 4 // version, group cipher
	if offset+2 > len(rsn) {
		return nil
	}
	pairwise := int(rsn[offset]) | int(rsn[offset+1])<<8
	offset += 2 + 4*pairwise
	if offset+2 > len(rsn) {
		return nil
	}
	count := int(rsn[offset]) | int(rsn[offset+1])<<8
	offset += 2

	var out []byte
	for i := 0; i < count && offset+4 <= len(rsn); i++ {
		out = append(out, rsn[offset+3])
		offset += 4
	}
	return out
}

// Fingerprint hashes the ordered element tags plus the rate and HT capability
// values. Tag order is kept since it is characteristic of a driver.
func Fingerprint(data []byte) string {
	var sb strings.Builder
	var values []string
	IterateIEs(data, func(id int, val []byte) {
		sb.WriteString(strconv.Itoa(id))
		sb.WriteByte(',')
		switch id {
		case TagSupportedRates, TagExtendedRates, TagHTCapabilities:
			values = append(values, hex.EncodeToString(val))
		}
	})
	if sb.Len() == 0 {
		return ""
	}
	sb.WriteByte('|')
	sb.WriteString(strings.Join(values, ","))

	sum := blake2b.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:8])
}
