package wifi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

const (
	snapLen       = 65536
	readTimeout   = 500 * time.Millisecond
	pruneInterval = time.Minute
)

// ErrNoSource is returned when neither an interface nor a capture file is set.
var ErrNoSource = errors.New("wifi: no interface or capture file configured")

// Options configures a Source.
type Options struct {
	Interface    string
	File         string
	Channels     []int
	Dwell        time.Duration
	Switcher     ChannelSwitcher
	Associations *Associations
	Clock        clock.Clock
	Debug        bool
}

// Source captures 802.11 management frames from a monitor-mode interface or a
// pcap file.
type Source struct {
	opts    Options
	handler *PacketHandler
	hopper  *ChannelHopper

	mu     sync.Mutex
	closer io.Closer
	done   chan struct{}
}

var _ ports.Transport = (*Source)(nil)

// NewSource creates a Wi-Fi transport. Live capture with a channel list also
// gets a channel hopper.
func NewSource(opts Options) *Source {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Dwell <= 0 {
		opts.Dwell = 300 * time.Millisecond
	}
	s := &Source{
		opts:    opts,
		handler: NewPacketHandler(opts.Clock, opts.Associations, opts.Debug),
		done:    make(chan struct{}),
	}
	if opts.File == "" && opts.Interface != "" && len(opts.Channels) > 0 {
		s.hopper = NewHopper(opts.Interface, opts.Channels, opts.Dwell, opts.Switcher)
		s.handler.hopper = s.hopper
	}
	return s
}

func (s *Source) Name() string { return string(domain.TransportWiFi) }

// Hopper returns the channel hopper, nil when capture is not hopping.
func (s *Source) Hopper() *ChannelHopper { return s.hopper }

// Start opens the capture and pumps packets into sink until ctx is done, the
// file ends, or Close is called.
func (s *Source) Start(ctx context.Context, sink ports.FrameSink) error {
	defer close(s.done)

	packets, closer, err := s.open()
	if err != nil {
		return err
	}
	closer = &onceCloser{c: closer}
	s.mu.Lock()
	s.closer = closer
	s.mu.Unlock()
	defer closer.Close()

	if s.hopper != nil {
		go s.hopper.Run()
		defer s.hopper.Stop()
	}

	slog.Info("wifi capture started", "interface", s.opts.Interface, "file", s.opts.File)
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.handler.deauths.Prune(s.opts.Clock.Now())
		case packet, ok := <-packets:
			if !ok {
				return nil
			}
			s.handler.HandlePacket(packet, sink)
		}
	}
}

func (s *Source) open() (chan gopacket.Packet, io.Closer, error) {
	switch {
	case s.opts.File != "":
		f, err := os.Open(s.opts.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open capture file: %w", err)
		}
		r, err := pcapgo.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("read capture header: %w", err)
		}
		src := gopacket.NewPacketSource(r, r.LinkType())
		src.NoCopy = true
		return src.Packets(), f, nil

	case s.opts.Interface != "":
		handle, err := pcap.OpenLive(s.opts.Interface, snapLen, true, readTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", s.opts.Interface, err)
		}
		if err := handle.SetBPFFilter("type mgt subtype beacon or type mgt subtype probe-resp or type mgt subtype deauth or type mgt subtype disassoc"); err != nil {
			slog.Warn("bpf filter rejected, capturing everything", "interface", s.opts.Interface, "error", err)
		}
		src := gopacket.NewPacketSource(handle, layers.LinkTypeIEEE80211Radio)
		return src.Packets(), closerFunc(func() error { handle.Close(); return nil }), nil
	}
	return nil, nil, ErrNoSource
}

// Close stops the capture and waits for Start to return.
func (s *Source) Close() error {
	s.mu.Lock()
	c := s.closer
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	err := c.Close()
	<-s.done
	return err
}

type onceCloser struct {
	once sync.Once
	c    io.Closer
	err  error
}

func (o *onceCloser) Close() error {
	o.once.Do(func() { o.err = o.c.Close() })
	return o.err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
