// Package serial reads Remote ID receiver output from a serial port.
//
// Receivers print one record per line:
//
//	BLE  <address> <rssi> <hex advertising data>
//	WIFI <address> <rssi> <hex message pack>
//	{"mac": "...", "Basic ID": {...}}
//
// Blank lines and lines starting with '#' are ignored.
package serial

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/ble"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

const (
	DefaultBaudRate  = 115200
	reconnectBackoff = 2 * time.Second
	maxLineLength    = 64 * 1024
)

// ErrBadLine wraps every rejected input line.
var ErrBadLine = errors.New("serial: bad line")

// Opener opens the underlying port.
type Opener func(port string, baud int) (io.ReadCloser, error)

// OpenPort opens a real serial device at 8N1.
func OpenPort(port string, baud int) (io.ReadCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(port, mode)
}

// Options configures a Source.
type Options struct {
	Port     string
	BaudRate int
	Opener   Opener
	// Reconnect reopens the port after a read failure until ctx is done.
	Reconnect bool
}

// Source is a line-oriented serial transport.
type Source struct {
	opts Options

	mu     sync.Mutex
	port   io.ReadCloser
	closed bool
}

var _ ports.Transport = (*Source)(nil)

// NewSource creates a serial transport.
func NewSource(opts Options) *Source {
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.Opener == nil {
		opts.Opener = OpenPort
	}
	return &Source{opts: opts}
}

func (s *Source) Name() string { return string(domain.TransportSerial) }

// Start reads lines until ctx is done or the port fails without Reconnect.
func (s *Source) Start(ctx context.Context, sink ports.FrameSink) error {
	for {
		err := s.runOnce(ctx, sink)
		if ctx.Err() != nil || s.isClosed() {
			return nil
		}
		if !s.opts.Reconnect {
			return err
		}
		sink.OnError(s.Name(), err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectBackoff):
		}
	}
}

func (s *Source) runOnce(ctx context.Context, sink ports.FrameSink) error {
	port, err := s.opts.Opener(s.opts.Port, s.opts.BaudRate)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.opts.Port, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		port.Close()
		return nil
	}
	s.port = port
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			port.Close()
		case <-stop:
		}
	}()
	defer port.Close()

	slog.Info("serial receiver connected", "port", s.opts.Port, "baud", s.opts.BaudRate)
	return ReadLines(port, sink)
}

// ReadLines feeds every line of r into sink and returns the read error, nil at EOF.
func ReadLines(r io.Reader, sink ports.FrameSink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		if err := HandleLine(scanner.Text(), sink); err != nil {
			sink.OnError(string(domain.TransportSerial), err)
		}
	}
	return scanner.Err()
}

// HandleLine parses one receiver line and forwards its content.
func HandleLine(line string, sink ports.FrameSink) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	if strings.HasPrefix(line, "{") {
		var bag map[string]any
		if err := json.Unmarshal([]byte(line), &bag); err != nil {
			return fmt.Errorf("%w: %v", ErrBadLine, err)
		}
		sink.OnStructuredRecord(bag, domain.FrameMeta{Transport: domain.TransportSerial})
		return nil
	}

	fields := strings.Fields(line)
	if len(fields) != 4 {
		return fmt.Errorf("%w: want 4 fields, got %d", ErrBadLine, len(fields))
	}
	rssi, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Errorf("%w: rssi %q", ErrBadLine, fields[2])
	}
	data, err := hex.DecodeString(fields[3])
	if err != nil {
		return fmt.Errorf("%w: payload: %v", ErrBadLine, err)
	}

	switch strings.ToUpper(fields[0]) {
	case "BLE":
		return ble.Deliver(sink, ble.Advertisement{Address: fields[1], RSSI: rssi, Data: data})
	case "WIFI":
		sink.OnRawFrame(data, domain.FrameMeta{
			Address:   strings.ToUpper(fields[1]),
			RSSI:      rssi,
			Transport: domain.TransportWiFi,
		})
		return nil
	}
	return fmt.Errorf("%w: unknown record type %q", ErrBadLine, fields[0])
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes the port and stops reconnecting.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}
