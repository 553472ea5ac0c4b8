// Package pubsub consumes Remote ID feeds published on Redis channels and
// republishes pipeline output.
package pubsub

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

// DefaultChannel is subscribed when no channel is configured.
const DefaultChannel = "remoteid"

// ErrBadMessage wraps every rejected message.
var ErrBadMessage = errors.New("pubsub: bad message")

type subscription interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Source subscribes to Redis channels. Each message is either a frame envelope
// {"address","rssi","frame":"<hex>"} or a structured record bag.
type Source struct {
	channels  []string
	subscribe func(ctx context.Context, channels ...string) (subscription, error)

	mu  sync.Mutex
	sub subscription
}

var _ ports.Transport = (*Source)(nil)

// NewSource subscribes through client.
func NewSource(client *redis.Client, channels ...string) *Source {
	return newSource(func(ctx context.Context, chs ...string) (subscription, error) {
		ps := client.Subscribe(ctx, chs...)
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			return nil, err
		}
		return ps, nil
	}, channels...)
}

func newSource(subscribe func(context.Context, ...string) (subscription, error), channels ...string) *Source {
	if len(channels) == 0 {
		channels = []string{DefaultChannel}
	}
	return &Source{channels: channels, subscribe: subscribe}
}

func (s *Source) Name() string { return string(domain.TransportPubSub) }

// Start subscribes and forwards messages until ctx is done or the subscription closes.
func (s *Source) Start(ctx context.Context, sink ports.FrameSink) error {
	sub, err := s.subscribe(ctx, s.channels...)
	if err != nil {
		return fmt.Errorf("subscribe %v: %w", s.channels, err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	defer sub.Close()

	slog.Info("pubsub feed subscribed", "channels", s.channels)
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := HandleMessage([]byte(msg.Payload), sink); err != nil {
				sink.OnError(s.Name(), fmt.Errorf("channel %s: %w", msg.Channel, err))
			}
		}
	}
}

// HandleMessage decodes one message payload and forwards it.
func HandleMessage(payload []byte, sink ports.FrameSink) error {
	return HandleMessageFrom(domain.TransportPubSub, payload, sink)
}

// HandleMessageFrom is HandleMessage for feeds arriving on another transport.
func HandleMessageFrom(transport domain.Transport, payload []byte, sink ports.FrameSink) error {
	var bag any
	if err := json.Unmarshal(payload, &bag); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return HandleBag(transport, bag, sink)
}

// HandleBag forwards an already decoded message. An object with a "frame" key
// is a frame envelope; any other object or array is a structured record.
func HandleBag(transport domain.Transport, bag any, sink ports.FrameSink) error {
	switch v := bag.(type) {
	case map[string]any:
		if raw, isFrame := v["frame"]; isFrame {
			return handleEnvelope(transport, v, raw, sink)
		}
		sink.OnStructuredRecord(v, domain.FrameMeta{Transport: transport})
		return nil
	case []any:
		sink.OnStructuredRecord(v, domain.FrameMeta{Transport: transport})
		return nil
	}
	return fmt.Errorf("%w: unexpected %T", ErrBadMessage, bag)
}

func handleEnvelope(transport domain.Transport, env map[string]any, raw any, sink ports.FrameSink) error {
	text, ok := raw.(string)
	if !ok {
		return fmt.Errorf("%w: frame is %T, want hex string", ErrBadMessage, raw)
	}
	frame, err := hex.DecodeString(text)
	if err != nil {
		return fmt.Errorf("%w: frame: %v", ErrBadMessage, err)
	}
	meta := domain.FrameMeta{Transport: transport}
	if addr, ok := env["address"].(string); ok && addr != "" {
		if !domain.IsValidMAC(addr) {
			return fmt.Errorf("%w: address %q", ErrBadMessage, addr)
		}
		meta.Address = strings.ToUpper(addr)
	}
	if rssi, ok := env["rssi"].(float64); ok {
		meta.RSSI = int(rssi)
	}
	sink.OnRawFrame(frame, meta)
	return nil
}

// Close ends the subscription.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	return s.sub.Close()
}
