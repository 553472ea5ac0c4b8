package wifi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rsnElement(akm byte) []byte {
	return ie(TagRSN, []byte{
		0x01, 0x00,
		0x00, 0x0F, 0xAC, 0x04,
		0x01, 0x00, 0x00, 0x0F, 0xAC, 0x04,
		0x01, 0x00, 0x00, 0x0F, 0xAC, akm,
		0x00, 0x00,
	})
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestParseSSID(t *testing.T) {
	ssid, hidden := ParseSSID(ie(TagSSID, []byte("Corp")))
	assert.Equal(t, "Corp", ssid)
	assert.False(t, hidden)

	_, hidden = ParseSSID(ie(TagSSID, []byte{0, 0, 0}))
	assert.True(t, hidden)

	_, hidden = ParseSSID(nil)
	assert.True(t, hidden)
}

func TestIterateIEsStopsOnTruncation(t *testing.T) {
	data := concat(ie(TagSSID, []byte("a")), []byte{TagDSParameterSet, 5, 1})
	var ids []int
	IterateIEs(data, func(id int, _ []byte) { ids = append(ids, id) })
	assert.Equal(t, []int{TagSSID}, ids)
	assert.Zero(t, ParseChannel(data))
}

func TestRemoteIDPayloads(t *testing.T) {
	data := concat(
		ie(TagSSID, []byte("x")),
		remoteIDElement([]byte{0x01, 0x02}),
		ie(TagVendorSpecific, []byte{0x00, 0x50, 0xF2, 0x01, 0x01, 0x00}),
		remoteIDElement([]byte{0x03}),
	)
	assert.Equal(t, [][]byte{{0x01, 0x02}, {0x03}}, RemoteIDPayloads(data))
}

func TestSecurity(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		privacy bool
		want    string
	}{
		{"open", nil, false, "OPEN"},
		{"wep", nil, true, "WEP"},
		{"wpa", ie(TagVendorSpecific, []byte{0x00, 0x50, 0xF2, 0x01, 0x01, 0x00}), true, "WPA"},
		{"wpa2 psk", rsnElement(2), true, "WPA2"},
		{"wpa3 sae", rsnElement(8), true, "WPA3"},
		{"truncated rsn", ie(TagRSN, []byte{0x01, 0x00}), true, "WPA2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Security(tt.data, tt.privacy))
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := concat(ie(TagSSID, []byte("one")), ie(TagSupportedRates, []byte{0x82, 0x84}))
	b := concat(ie(TagSSID, []byte("two")), ie(TagSupportedRates, []byte{0x82, 0x84}))
	c := concat(ie(TagSupportedRates, []byte{0x82, 0x84}), ie(TagSSID, []byte("one")))

	assert.Len(t, Fingerprint(a), 16)
	assert.Equal(t, Fingerprint(a), Fingerprint(b), "SSID value is not part of the fingerprint")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c), "tag order is")
	assert.Empty(t, Fingerprint(nil))
}
