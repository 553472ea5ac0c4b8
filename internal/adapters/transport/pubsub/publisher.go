package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
	"github.com/lcalzada-xor/ridwatch/internal/telemetry"
)

const publishTimeout = 2 * time.Second

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type outbound struct {
	channel string
	payload []byte
}

// Publisher is a sink that republishes sightings, detections and actions on
// Redis channels named <prefix>.sightings, <prefix>.detections and <prefix>.actions.
type Publisher struct {
	client redisPublisher
	prefix string
	queue  chan outbound
	wg     sync.WaitGroup
	once   sync.Once
}

var _ ports.Sink = (*Publisher)(nil)

// NewPublisher creates a publisher with a bounded queue and starts its writer.
func NewPublisher(client redisPublisher, prefix string, queueSize int) *Publisher {
	if prefix == "" {
		prefix = "ridwatch"
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &Publisher{client: client, prefix: prefix, queue: make(chan outbound, queueSize)}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Publisher) OnCanonicalSighting(s domain.Sighting) {
	p.enqueue("sightings", s)
}

func (p *Publisher) OnDetection(d domain.Detection) {
	p.enqueue("detections", d)
}

func (p *Publisher) OnDefensiveAction(a domain.DefensiveAction) {
	p.enqueue("actions", a)
}

func (p *Publisher) enqueue(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("publish encode failed", "topic", topic, "error", err)
		return
	}
	select {
	case p.queue <- outbound{channel: p.prefix + "." + topic, payload: payload}:
	default:
		telemetry.RecordsDropped.WithLabelValues("publish_queue_full").Inc()
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.client.Publish(ctx, msg.channel, msg.payload).Err(); err != nil {
			telemetry.TransportErrors.WithLabelValues("redis_publish").Inc()
			slog.Debug("publish failed", "channel", msg.channel, "error", err)
		}
		cancel()
	}
}

// Close drains the queue and stops the writer. Sinks must not be called after Close.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
}
