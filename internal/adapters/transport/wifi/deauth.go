package wifi

import (
	"strings"
	"sync"
	"time"
)

const numShards = 16

// maxDeauthStamps bounds the timestamps kept per BSSID. Counts above it
// saturate, far past any flood threshold.
const maxDeauthStamps = 512

type deauthShard struct {
	mu     sync.Mutex
	stamps map[string][]time.Time
}

// DeauthCounter counts deauthentication and disassociation frames per BSSID
// over a sliding window.
type DeauthCounter struct {
	shards [numShards]deauthShard
	window time.Duration
}

// NewDeauthCounter creates a counter with the given window length.
func NewDeauthCounter(window time.Duration) *DeauthCounter {
	c := &DeauthCounter{window: window}
	for i := range c.shards {
		c.shards[i].stamps = make(map[string][]time.Time)
	}
	return c
}

func (c *DeauthCounter) shard(key string) *deauthShard {
	hash := uint32(0)
	for i := 0; i < len(key); i++ {
		hash = hash*31 + uint32(key[i])
	}
	return &c.shards[hash%numShards]
}

// expire drops stamps older than the window. stamps is in arrival order.
func (c *DeauthCounter) expire(stamps []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) > c.window {
		i++
	}
	return stamps[i:]
}

// Record counts one frame for bssid at now and returns the count inside the
// window ending at now.
func (c *DeauthCounter) Record(bssid string, now time.Time) int {
	bssid = strings.ToUpper(bssid)
	sh := c.shard(bssid)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stamps := append(c.expire(sh.stamps[bssid], now), now)
	if len(stamps) > maxDeauthStamps {
		stamps = stamps[len(stamps)-maxDeauthStamps:]
	}
	sh.stamps[bssid] = stamps
	return len(stamps)
}

// Current returns the count inside the window ending at now and the time of
// the oldest frame still counted.
func (c *DeauthCounter) Current(bssid string, now time.Time) (int, time.Time) {
	bssid = strings.ToUpper(bssid)
	sh := c.shard(bssid)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stamps := c.expire(sh.stamps[bssid], now)
	if len(stamps) == 0 {
		return 0, time.Time{}
	}
	return len(stamps), stamps[0]
}

// Prune drops BSSIDs with no frame inside the window.
func (c *DeauthCounter) Prune(now time.Time) int {
	removed := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for k, stamps := range sh.stamps {
			if live := c.expire(stamps, now); len(live) == 0 {
				delete(sh.stamps, k)
				removed++
			} else {
				sh.stamps[k] = live
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
