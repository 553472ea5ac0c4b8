package wifi

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/detection"
)

const capabilityPrivacy = 0x0010

// Associations is the set of networks the host is joined to. It answers the
// orchestrator's association query and marks matching beacons.
type Associations struct {
	mu    sync.RWMutex
	names map[string]bool
}

// NewAssociations creates the set from network names.
func NewAssociations(names ...string) *Associations {
	a := &Associations{names: make(map[string]bool)}
	for _, n := range names {
		if n != "" {
			a.names[n] = true
		}
	}
	return a
}

func (a *Associations) IsAssociated(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.names[name]
}

// Set replaces the association set.
func (a *Associations) Set(names ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			a.names[n] = true
		}
	}
}

// PacketHandler extracts Remote ID message packs from beacons and tracks
// deauthentication pressure per BSSID.
type PacketHandler struct {
	clock        clock.Clock
	deauths      *DeauthCounter
	associations *Associations
	hopper       *ChannelHopper
	debug        bool
}

// NewPacketHandler creates a handler. A nil association set means never associated.
func NewPacketHandler(clk clock.Clock, assoc *Associations, debug bool) *PacketHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	if assoc == nil {
		assoc = NewAssociations()
	}
	return &PacketHandler{
		clock:        clk,
		deauths:      NewDeauthCounter(detection.DeauthFloodWindow),
		associations: assoc,
		debug:        debug,
	}
}

// HandlePacket processes one captured frame. A malformed packet is reported to
// the sink and never stops the capture.
func (h *PacketHandler) HandlePacket(packet gopacket.Packet, sink ports.FrameSink) {
	defer func() {
		if r := recover(); r != nil {
			sink.OnError(string(domain.TransportWiFi), fmt.Errorf("panic handling packet: %v", r))
		}
	}()

	dot11, ok := packet.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok {
		return
	}

	switch dot11.Type {
	case layers.Dot11TypeMgmtDeauthentication, layers.Dot11TypeMgmtDisassociation:
		h.handleDeauth(dot11)
	case layers.Dot11TypeMgmtBeacon, layers.Dot11TypeMgmtProbeResp:
		h.handleBeacon(packet, dot11, sink)
	}
}

func (h *PacketHandler) handleDeauth(dot11 *layers.Dot11) {
	bssid := strings.ToUpper(dot11.Address3.String())
	n := h.deauths.Record(bssid, h.clock.Now())
	if h.debug {
		slog.Debug("deauthentication frame", "bssid", bssid, "source", dot11.Address2.String(),
			"target", dot11.Address1.String(), "count", n)
	}
}

func (h *PacketHandler) handleBeacon(packet gopacket.Packet, dot11 *layers.Dot11, sink ports.FrameSink) {
	var ieData []byte
	interval, privacy := 0, false

	if beacon, ok := packet.Layer(layers.LayerTypeDot11MgmtBeacon).(*layers.Dot11MgmtBeacon); ok {
		ieData = beacon.LayerPayload()
		interval = int(beacon.Interval)
		privacy = beacon.Flags&capabilityPrivacy != 0
	} else if resp, ok := packet.Layer(layers.LayerTypeDot11MgmtProbeResp).(*layers.Dot11MgmtProbeResp); ok {
		ieData = resp.LayerPayload()
		interval = int(resp.Interval)
		privacy = resp.Flags&capabilityPrivacy != 0
	}
	if len(ieData) == 0 {
		ieData = reassembleIEs(packet)
	}

	payloads := RemoteIDPayloads(ieData)
	if len(payloads) == 0 {
		return
	}

	rssi, freq := radioInfo(packet)
	now := h.clock.Now()
	bssid := strings.ToUpper(dot11.Address3.String())
	ssid, _ := ParseSSID(ieData)
	channel := ParseChannel(ieData)
	if channel == 0 {
		channel = frequencyToChannel(freq)
	}
	count, windowStart := h.deauths.Current(bssid, now)

	network := &domain.NetworkContext{
		SSID:           ssid,
		BSSID:          bssid,
		Channel:        channel,
		Security:       Security(ieData, privacy),
		BeaconInterval: interval,
		Fingerprint:    Fingerprint(ieData),
		DeauthCount:    count,
		DeauthWindow:   windowStart,
		Associated:     ssid != "" && h.associations.IsAssociated(ssid),
	}

	address := strings.ToUpper(dot11.Address2.String())
	if h.hopper != nil {
		h.hopper.Observe(address, channel)
	}

	meta := domain.FrameMeta{
		Address:   address,
		RSSI:      rssi,
		Transport: domain.TransportWiFi,
		Network:   network,
	}
	for _, p := range payloads {
		sink.OnRawFrame(p, meta)
	}
}

// reassembleIEs rebuilds raw element bytes when gopacket decoded them into layers.
func reassembleIEs(packet gopacket.Packet) []byte {
	var out []byte
	for _, l := range packet.Layers() {
		if ie, ok := l.(*layers.Dot11InformationElement); ok {
			out = append(out, byte(ie.ID), ie.Length)
			out = append(out, ie.Info...)
		}
	}
	return out
}

func radioInfo(packet gopacket.Packet) (rssi, freq int) {
	rssi = -100
	if rt, ok := packet.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap); ok {
		if rt.Present.DBMAntennaSignal() {
			rssi = int(rt.DBMAntennaSignal)
		}
		freq = int(rt.ChannelFrequency)
	}
	return rssi, freq
}

// frequencyToChannel converts a center frequency in MHz to a channel number.
func frequencyToChannel(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq < 2484:
		return (freq - 2407) / 5
	case freq >= 5170 && freq <= 5825:
		return (freq - 5000) / 5
	case freq >= 5955 && freq <= 7115:
		return (freq - 5950) / 5
	}
	return 0
}
