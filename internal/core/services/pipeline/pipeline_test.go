package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/correlator"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/decoder"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/response"
)

var start = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu         sync.Mutex
	sightings  []domain.Sighting
	detections []domain.Detection
	actions    []domain.DefensiveAction
}

func (r *recordingSink) OnCanonicalSighting(s domain.Sighting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sightings = append(r.sightings, s)
}

func (r *recordingSink) OnDetection(d domain.Detection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detections = append(r.detections, d)
}

func (r *recordingSink) OnDefensiveAction(a domain.DefensiveAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

func (r *recordingSink) hasDetection(t domain.ThreatType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.detections {
		if d.Type == t {
			return true
		}
	}
	return false
}

type panickingSink struct{}

func (panickingSink) OnCanonicalSighting(domain.Sighting)      { panic("boom") }
func (panickingSink) OnDetection(domain.Detection)             { panic("boom") }
func (panickingSink) OnDefensiveAction(domain.DefensiveAction) { panic("boom") }

type staticVendors map[string]string

func (s staticVendors) LookupVendor(_ context.Context, address string) (string, error) {
	return s[address], nil
}

func newTestPipeline(clk *clock.Mock, vendors map[string]string) (*Pipeline, *recordingSink) {
	opts := Options{
		Clock:      clk,
		Correlator: correlator.New(correlator.Options{Clock: clk}),
	}
	if vendors != nil {
		opts.Vendors = staticVendors(vendors)
	}
	p := New(opts)
	sink := &recordingSink{}
	p.AddSink(sink)
	return p, sink
}

func meta(addr string, rssi int) domain.FrameMeta {
	return domain.FrameMeta{Address: addr, RSSI: rssi, Transport: domain.TransportBLE}
}

func TestPipelineEndToEnd(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, nil)
	defer p.Close()

	p.OnRawFrame(decoder.EncodeBasicID(1, 2, "SERIAL123456"), meta("00:13:37:12:34:56", -80))

	require.Len(t, sink.sightings, 1)
	s := sink.sightings[0]
	assert.Equal(t, "SERIAL123456", s.Identity)
	assert.Equal(t, domain.TransportBLE, s.Transport)

	require.True(t, sink.hasDetection(domain.ThreatKnownAttackOUI))
	require.NotEmpty(t, sink.actions)
	assert.Equal(t, domain.ActionQuarantine, sink.actions[0].Kind)
	assert.Contains(t, p.Defense().Quarantined, "SERIAL123456")

	recent := p.RecentDetections(10)
	require.NotEmpty(t, recent)
	assert.Equal(t, domain.ThreatKnownAttackOUI, recent[0].Type)
}

func TestPipelineThrottlesAndMerges(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, nil)
	defer p.Close()

	addr := "00:11:22:33:44:55"
	p.OnRawFrame(decoder.EncodeBasicID(1, 2, "SERIAL123456"), meta(addr, -80))
	clk.Advance(500 * time.Millisecond)
	p.OnRawFrame(decoder.EncodeOperatorID(0, "OP-1234"), meta(addr, -80))
	assert.Len(t, sink.sightings, 1, "second record inside throttle window")

	clk.Advance(2 * time.Second)
	p.OnRawFrame(decoder.EncodeSelfID(0, "survey"), meta(addr, -80))
	require.Len(t, sink.sightings, 2)
	assert.Equal(t, "OP-1234", sink.sightings[1].OperatorID, "throttled record still merged")
}

func TestPipelineMessagePack(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, nil)
	defer p.Close()

	pack := decoder.EncodePack(
		decoder.EncodeBasicID(1, 2, "SERIAL123456"),
		decoder.EncodeOperatorID(0, "OP-1234"),
	)
	p.OnRawFrame(pack, meta("00:11:22:33:44:55", -80))

	require.Len(t, sink.sightings, 1)
	assert.Equal(t, "SERIAL123456", sink.sightings[0].Identity)
}

func TestPipelineSkipsMalformedFrames(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, nil)
	defer p.Close()

	p.OnRawFrame([]byte{0x00, 0x12}, meta("00:11:22:33:44:55", -80))
	p.OnRawFrame([]byte{0x90}, meta("00:11:22:33:44:55", -80))
	p.OnRawFrame(nil, meta("00:11:22:33:44:55", -80))
	assert.Empty(t, sink.sightings)
}

func TestPipelineStructuredRecord(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, nil)
	defer p.Close()

	p.OnStructuredRecord(map[string]any{
		"mac":      "00:11:22:33:44:55",
		"rssi":     -70,
		"Basic ID": map[string]any{"ID": "SERIAL777777"},
		"Location/Vector": map[string]any{
			"Latitude":  40.4,
			"Longitude": -3.7,
		},
	}, domain.FrameMeta{Transport: domain.TransportPubSub})

	require.Len(t, sink.sightings, 1)
	s := sink.sightings[0]
	assert.Equal(t, "SERIAL777777", s.Identity)
	assert.Equal(t, domain.TransportPubSub, s.Transport)
}

func TestPipelineStructuredSectionLinkFields(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, nil)
	defer p.Close()

	p.OnStructuredRecord([]any{
		map[string]any{"Basic ID": map[string]any{"ID": "SERIAL888888", "MAC": "00:11:22:33:44:77", "RSSI": -55}},
		map[string]any{"Location/Vector": map[string]any{"Latitude": 40.4, "Longitude": -3.7, "MAC": "00:11:22:33:44:77", "RSSI": -55}},
	}, domain.FrameMeta{Transport: domain.TransportPubSub})

	require.Len(t, sink.sightings, 1)
	s := sink.sightings[0]
	assert.Equal(t, "SERIAL888888", s.Identity)
	assert.Equal(t, "00:11:22:33:44:77", s.Address)
	assert.Equal(t, -55, s.RSSI)
}

func TestPipelineVendorEnrichment(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, map[string]string{"00:11:22:33:44:55": "Acme Drones"})
	defer p.Close()

	p.OnRawFrame(decoder.EncodeBasicID(1, 2, "SERIAL123456"), meta("00:11:22:33:44:55", -80))
	require.Len(t, sink.sightings, 1)
	assert.Equal(t, "Acme Drones", sink.sightings[0].Vendor)
}

func TestPipelineHistoryFeedsEngine(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, nil)
	defer p.Close()

	addr := "00:11:22:33:44:55"
	frame := decoder.EncodeBasicID(1, 2, "SERIAL123456")
	for i := 0; i < 3; i++ {
		p.OnRawFrame(frame, meta(addr, -80))
		clk.Advance(3 * time.Second)
	}
	assert.False(t, sink.hasDetection(domain.ThreatRSSIAnomaly))

	p.OnRawFrame(frame, meta(addr, -50))
	assert.True(t, sink.hasDetection(domain.ThreatRSSIAnomaly))
	assert.True(t, sink.hasDetection(domain.ThreatProximity))
}

func TestPipelinePanickingSinkIsolated(t *testing.T) {
	clk := clock.NewMock(start)
	p := New(Options{Clock: clk, Correlator: correlator.New(correlator.Options{Clock: clk})})
	defer p.Close()

	p.AddSink(panickingSink{})
	sink := &recordingSink{}
	p.AddSink(sink)

	p.OnRawFrame(decoder.EncodeBasicID(1, 2, "SERIAL123456"), meta("00:13:37:12:34:56", -80))
	assert.Len(t, sink.sightings, 1)
	assert.NotEmpty(t, sink.detections)
}

func TestPipelineResetDefense(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, nil)

	p.OnRawFrame(decoder.EncodeBasicID(1, 2, "SERIAL123456"), meta("00:13:37:12:34:56", -80))
	require.NotEmpty(t, p.Defense().Quarantined)

	require.NoError(t, p.ResetDefense())
	assert.Empty(t, p.Defense().Quarantined)
	last := sink.actions[len(sink.actions)-1]
	assert.Equal(t, domain.ActionReset, last.Kind)

	p.Close()
	assert.ErrorIs(t, p.ResetDefense(), ErrClosed)

	p.OnRawFrame(decoder.EncodeBasicID(1, 2, "SERIAL999999"), meta("00:11:22:33:44:66", -80))
	for _, s := range sink.sightings {
		assert.NotEqual(t, "SERIAL999999", s.Identity, "input after Close is ignored")
	}
}

func TestPipelineCleanup(t *testing.T) {
	clk := clock.NewMock(start)
	p, _ := newTestPipeline(clk, nil)
	defer p.Close()

	p.OnRawFrame(decoder.EncodeBasicID(1, 2, "SERIAL123456"), meta("00:13:37:12:34:56", -80))
	addrs, ids := p.correlator.Counts()
	assert.Equal(t, 1, addrs)
	assert.Equal(t, 1, ids)

	clk.Advance(correlator.AddressTTL + time.Second)
	p.Cleanup()
	addrs, _ = p.correlator.Counts()
	assert.Equal(t, 0, addrs)

	clk.Advance(response.CooldownTTL)
	p.Cleanup()
	_, ids = p.correlator.Counts()
	assert.Equal(t, 0, ids)
	assert.Empty(t, p.Defense().Cooldowns)
}

func TestPipelineCloseWaitsForInFlight(t *testing.T) {
	clk := clock.NewMock(start)
	p, sink := newTestPipeline(clk, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := []string{"00:11:22:33:44:55", "00:11:22:33:44:66"}[i%2]
			p.OnRawFrame(decoder.EncodeBasicID(1, 2, "SERIAL123456"), meta(addr, -80))
		}(i)
	}
	wg.Wait()
	p.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.sightings, 1, "one emission per identity inside the throttle window")
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3, time.Minute)
	for i := 0; i < 5; i++ {
		h.Add(domain.Sighting{Identity: "A", RSSI: -50 - i, Timestamp: start.Add(time.Duration(i) * time.Second)})
	}

	got := h.Recent("A", start.Add(5*time.Second))
	require.Len(t, got, 3)
	assert.Equal(t, -52, got[0].RSSI)
	assert.Equal(t, -54, got[2].RSSI)

	assert.Len(t, h.Recent("A", start.Add(64*time.Second)), 1, "window drops old entries")
	assert.Equal(t, 1, h.Prune(start.Add(2*time.Minute)))
	assert.Empty(t, h.Recent("A", start))
}
