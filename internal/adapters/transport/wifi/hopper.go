package wifi

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// DefaultScanDwell is how long the hopper stays on a channel after a scan request.
const DefaultScanDwell = 10 * time.Second

// maxTrackedAddresses bounds the transmitter to channel map.
const maxTrackedAddresses = 4096

// ChannelSwitcher abstracts the mechanism for changing Wi-Fi channels.
type ChannelSwitcher interface {
	SetChannel(iface string, channel int) error
}

// IWSwitcher changes channels with the iw command.
type IWSwitcher struct{}

func (IWSwitcher) SetChannel(iface string, channel int) error {
	if !domain.IsValidInterface(iface) {
		return fmt.Errorf("refusing interface name %q", iface)
	}
	cmd := exec.Command("iw", iface, "set", "channel", fmt.Sprintf("%d", channel))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("set channel %d on %s: %w", channel, iface, err)
	}
	return nil
}

// dwell holds the hopper on channel (the current one when zero) for d.
type dwell struct {
	d       time.Duration
	channel int
}

// ChannelHopper cycles a capture interface through a channel list.
type ChannelHopper struct {
	iface     string
	delay     time.Duration
	scanDwell time.Duration
	switcher  ChannelSwitcher

	mu       sync.Mutex
	channels []int
	index    int
	errors   int
	heard    map[string]int

	pauseCh  chan dwell
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHopper creates a hopper. A nil switcher uses iw.
func NewHopper(iface string, channels []int, delay time.Duration, switcher ChannelSwitcher) *ChannelHopper {
	if switcher == nil {
		switcher = IWSwitcher{}
	}
	return &ChannelHopper{
		iface:     iface,
		delay:     delay,
		scanDwell: DefaultScanDwell,
		switcher:  switcher,
		channels:  append([]int(nil), channels...),
		heard:     make(map[string]int),
		pauseCh:   make(chan dwell, 1),
		stopCh:    make(chan struct{}),
	}
}

// SetChannels replaces the channel list and restarts the rotation.
func (h *ChannelHopper) SetChannels(channels []int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = append([]int(nil), channels...)
	h.index = 0
	slog.Info("channel list updated", "interface", h.iface, "channels", channels)
}

// Channels returns a copy of the channel list.
func (h *ChannelHopper) Channels() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.channels...)
}

// Run hops until Stop is called.
func (h *ChannelHopper) Run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("channel hopper panicked", "interface", h.iface, "panic", r)
		}
	}()

	slog.Info("starting channel hopper", "interface", h.iface, "dwell", h.delay)
	ticker := time.NewTicker(h.delay)
	defer ticker.Stop()

	h.hop()
	for {
		select {
		case <-h.stopCh:
			return
		case req := <-h.pauseCh:
			ticker.Stop()
			if req.channel > 0 {
				h.tune(req.channel)
			}
			slog.Debug("channel hopper paused", "interface", h.iface, "channel", req.channel, "for", req.d)
			select {
			case <-time.After(req.d):
				ticker.Reset(h.delay)
			case <-h.stopCh:
				return
			}
		case <-ticker.C:
			h.hop()
		}
	}
}

// Pause holds the current channel for d. A pause already pending wins.
func (h *ChannelHopper) Pause(d time.Duration) {
	h.hold(dwell{d: d})
}

func (h *ChannelHopper) hold(req dwell) {
	select {
	case h.pauseCh <- req:
	default:
	}
}

// Observe records the channel a transmitter was last heard on.
func (h *ChannelHopper) Observe(address string, channel int) {
	if address == "" || channel <= 0 {
		return
	}
	address = strings.ToUpper(address)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.heard[address]; !ok && len(h.heard) >= maxTrackedAddresses {
		h.heard = make(map[string]int)
	}
	h.heard[address] = channel
}

// ChannelOf returns the channel address was last heard on.
func (h *ChannelHopper) ChannelOf(address string) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.heard[strings.ToUpper(address)]
	return ch, ok
}

// RequestScan tunes to the channel address was last heard on and dwells there.
// An unknown address dwells on the current channel.
func (h *ChannelHopper) RequestScan(address, reason string) {
	ch, _ := h.ChannelOf(address)
	slog.Info("scan requested", "interface", h.iface, "address", address, "channel", ch, "reason", reason)
	h.hold(dwell{d: h.scanDwell, channel: ch})
}

// Stop ends Run. Safe to call more than once.
func (h *ChannelHopper) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *ChannelHopper) hop() {
	h.mu.Lock()
	if len(h.channels) == 0 {
		h.mu.Unlock()
		return
	}
	if h.index >= len(h.channels) {
		h.index = 0
	}
	ch := h.channels[h.index]
	h.index = (h.index + 1) % len(h.channels)
	h.mu.Unlock()

	h.tune(ch)
}

// tune switches to ch. Only the Run goroutine calls it.
func (h *ChannelHopper) tune(ch int) {
	if err := h.switcher.SetChannel(h.iface, ch); err != nil {
		h.errors++
		if h.errors == 1 || h.errors%10 == 0 {
			slog.Warn("channel switch failed", "interface", h.iface, "channel", ch, "consecutive", h.errors, "error", err)
		}
		return
	}
	if h.errors > 0 {
		slog.Info("channel hopper recovered", "interface", h.iface, "after", h.errors)
		h.errors = 0
	}
}
