package wifi

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSwitcher struct {
	mu    sync.Mutex
	calls []int
	fail  bool
}

func (f *fakeSwitcher) SetChannel(_ string, channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, channel)
	if f.fail {
		return errors.New("switch failed")
	}
	return nil
}

func (f *fakeSwitcher) snapshot() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

func TestHopperRoundRobin(t *testing.T) {
	sw := &fakeSwitcher{}
	h := NewHopper("wlan0", []int{1, 6, 11}, 10*time.Millisecond, sw)

	go h.Run()
	time.Sleep(55 * time.Millisecond)
	h.Stop()

	calls := sw.snapshot()
	assert.GreaterOrEqual(t, len(calls), 3)
	want := []int{1, 6, 11}
	for i, ch := range calls {
		assert.Equal(t, want[i%3], ch, "hop %d", i)
	}
}

func TestHopperRequestScanPauses(t *testing.T) {
	sw := &fakeSwitcher{}
	h := NewHopper("wlan0", []int{1, 6}, 10*time.Millisecond, sw)
	h.scanDwell = 200 * time.Millisecond

	go h.Run()
	defer h.Stop()
	time.Sleep(25 * time.Millisecond)

	h.RequestScan("SERIAL123456", "proximity")
	time.Sleep(15 * time.Millisecond)
	before := len(sw.snapshot())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, len(sw.snapshot()), "no hops while dwelling")
}

func TestHopperRequestScanTunesToHeardChannel(t *testing.T) {
	sw := &fakeSwitcher{}
	h := NewHopper("wlan0", []int{1, 6}, 10*time.Millisecond, sw)
	h.scanDwell = 200 * time.Millisecond
	h.Observe("60:60:1f:01:02:03", 11)

	go h.Run()
	defer h.Stop()
	time.Sleep(25 * time.Millisecond)

	h.RequestScan("60:60:1F:01:02:03", "proximity")
	time.Sleep(15 * time.Millisecond)
	calls := sw.snapshot()
	assert.Equal(t, 11, calls[len(calls)-1])
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sw.snapshot(), len(calls), "stays on the heard channel")
}

func TestHopperObserveBounded(t *testing.T) {
	h := NewHopper("wlan0", []int{1}, time.Second, &fakeSwitcher{})
	h.Observe("", 6)
	h.Observe("AA:BB:CC:DD:EE:01", 0)
	_, ok := h.ChannelOf("AA:BB:CC:DD:EE:01")
	assert.False(t, ok)

	for i := 0; i < maxTrackedAddresses+1; i++ {
		h.Observe(fmt.Sprintf("addr-%d", i), 6)
	}
	assert.LessOrEqual(t, len(h.heard), maxTrackedAddresses)
	ch, ok := h.ChannelOf(fmt.Sprintf("ADDR-%d", maxTrackedAddresses))
	assert.True(t, ok)
	assert.Equal(t, 6, ch)
}

func TestHopperEmptyAndErrors(t *testing.T) {
	empty := &fakeSwitcher{}
	h := NewHopper("wlan0", nil, 5*time.Millisecond, empty)
	go h.Run()
	time.Sleep(20 * time.Millisecond)
	h.Stop()
	h.Stop()
	assert.Empty(t, empty.snapshot())

	failing := &fakeSwitcher{fail: true}
	h = NewHopper("wlan0", []int{1}, 5*time.Millisecond, failing)
	go h.Run()
	time.Sleep(30 * time.Millisecond)
	h.Stop()
	assert.Greater(t, len(failing.snapshot()), 1, "keeps retrying after failures")
}

func TestHopperSetChannels(t *testing.T) {
	h := NewHopper("wlan0", []int{1}, time.Second, &fakeSwitcher{})
	h.SetChannels([]int{36, 40})
	assert.Equal(t, []int{36, 40}, h.Channels())
}
