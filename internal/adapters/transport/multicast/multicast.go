// Package multicast receives Remote ID feeds over UDP multicast.
//
// A datagram is either JSON, handled like a pub/sub message, or binary:
// address(6) rssi(int8) frame.
package multicast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/pubsub"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

const (
	DefaultGroup  = "239.2.3.1:6970"
	readDeadline  = 250 * time.Millisecond
	maxDatagram   = 9000
	binaryHeader  = 7
	receiveBuffer = 1 << 20
)

// ErrShortDatagram is returned for binary datagrams without a frame.
var ErrShortDatagram = errors.New("multicast: datagram shorter than header")

// Options configures a Source.
type Options struct {
	// Group is host:port. A unicast host listens without joining.
	Group string
	// Interface names the NIC to join on; empty uses the system default.
	Interface string
	// Conn overrides socket creation.
	Conn net.PacketConn
}

// Source is a UDP multicast transport.
type Source struct {
	opts Options

	mu   sync.Mutex
	conn net.PacketConn
}

var _ ports.Transport = (*Source)(nil)

// NewSource creates a multicast transport.
func NewSource(opts Options) *Source {
	if opts.Group == "" {
		opts.Group = DefaultGroup
	}
	return &Source{opts: opts}
}

func (s *Source) Name() string { return string(domain.TransportMulticast) }

// Start joins the group and reads datagrams until ctx is done or Close is called.
func (s *Source) Start(ctx context.Context, sink ports.FrameSink) error {
	conn, err := s.listen()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := HandleDatagram(buf[:n], sink); err != nil {
			sink.OnError(s.Name(), fmt.Errorf("from %v: %w", from, err))
		}
	}
}

func (s *Source) listen() (net.PacketConn, error) {
	if s.opts.Conn != nil {
		return s.opts.Conn, nil
	}

	addr, err := net.ResolveUDPAddr("udp4", s.opts.Group)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", s.opts.Group, err)
	}
	if !addr.IP.IsMulticast() {
		return net.ListenUDP("udp4", addr)
	}

	c, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", addr.Port))
	if err != nil {
		return nil, fmt.Errorf("listen :%d: %w", addr.Port, err)
	}
	if uc, ok := c.(*net.UDPConn); ok {
		if err := uc.SetReadBuffer(receiveBuffer); err != nil {
			slog.Warn("multicast receive buffer not applied", "error", err)
		}
	}

	var ifi *net.Interface
	if s.opts.Interface != "" {
		if ifi, err = net.InterfaceByName(s.opts.Interface); err != nil {
			c.Close()
			return nil, fmt.Errorf("interface %s: %w", s.opts.Interface, err)
		}
	}

	p := ipv4.NewPacketConn(c)
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: addr.IP}); err != nil {
		c.Close()
		return nil, fmt.Errorf("join %s: %w", addr.IP, err)
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		slog.Debug("multicast loopback not set", "error", err)
	}
	slog.Info("multicast group joined", "group", s.opts.Group, "interface", s.opts.Interface)
	return c, nil
}

// HandleDatagram decodes one datagram and forwards it.
func HandleDatagram(data []byte, sink ports.FrameSink) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return pubsub.HandleMessageFrom(domain.TransportMulticast, []byte(trimmed), sink)
	}
	if len(data) <= binaryHeader {
		return ErrShortDatagram
	}
	frame := append([]byte(nil), data[binaryHeader:]...)
	sink.OnRawFrame(frame, domain.FrameMeta{
		Address:   strings.ToUpper(net.HardwareAddr(data[:6]).String()),
		RSSI:      int(int8(data[6])),
		Transport: domain.TransportMulticast,
	})
	return nil
}

// Close stops the receive loop.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
