// Package ble extracts Remote ID messages from Bluetooth LE advertising data.
package ble

import (
	"errors"
	"strings"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

// AD structure types carrying 16-bit UUID service data.
const (
	adServiceData16 = 0x16

	// RemoteIDServiceUUID is the ASTM assigned service UUID.
	RemoteIDServiceUUID = 0xFFFA
	// RemoteIDAppCode marks Open Drone ID service data.
	RemoteIDAppCode = 0x0D
)

// ErrNoRemoteID is returned when an advertisement carries no Remote ID service data.
var ErrNoRemoteID = errors.New("ble: no remote id service data")

// Advertisement is one received advertising PDU payload.
type Advertisement struct {
	Address string
	RSSI    int
	Data    []byte
}

// RemoteIDPayloads walks the AD structures and returns each Remote ID message
// with the service UUID, application code and message counter removed.
func RemoteIDPayloads(data []byte) [][]byte {
	var out [][]byte
	for offset := 0; offset < len(data); {
		length := int(data[offset])
		if length == 0 {
			break
		}
		end := offset + 1 + length
		if end > len(data) {
			break
		}
		adType := data[offset+1]
		body := data[offset+2 : end]
		offset = end

		if adType != adServiceData16 || len(body) < 5 {
			continue
		}
		uuid := int(body[0]) | int(body[1])<<8
		if uuid != RemoteIDServiceUUID || body[2] != RemoteIDAppCode {
			continue
		}
		out = append(out, body[4:])
	}
	return out
}

// Deliver hands every Remote ID message in adv to sink.
func Deliver(sink ports.FrameSink, adv Advertisement) error {
	payloads := RemoteIDPayloads(adv.Data)
	if len(payloads) == 0 {
		return ErrNoRemoteID
	}
	meta := domain.FrameMeta{
		Address:   strings.ToUpper(adv.Address),
		RSSI:      adv.RSSI,
		Transport: domain.TransportBLE,
	}
	for _, p := range payloads {
		sink.OnRawFrame(p, meta)
	}
	return nil
}
