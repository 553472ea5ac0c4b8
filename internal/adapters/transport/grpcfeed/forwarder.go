package grpcfeed

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
	"github.com/lcalzada-xor/ridwatch/internal/telemetry"
)

// Forwarder is a FrameSink that streams everything it receives to a remote
// Ingest service. Agents use it in place of a local pipeline.
type Forwarder struct {
	mu     sync.Mutex
	stream grpc.ClientStream
}

var _ ports.FrameSink = (*Forwarder)(nil)

// NewForwarder opens the Report stream on conn.
func NewForwarder(ctx context.Context, conn grpc.ClientConnInterface) (*Forwarder, error) {
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], reportPath)
	if err != nil {
		return nil, fmt.Errorf("open report stream: %w", err)
	}
	return &Forwarder{stream: stream}, nil
}

func (f *Forwarder) OnRawFrame(frame []byte, meta domain.FrameMeta) {
	f.send(map[string]any{
		"address": meta.Address,
		"rssi":    meta.RSSI,
		"frame":   hex.EncodeToString(frame),
	})
}

func (f *Forwarder) OnStructuredRecord(bag any, _ domain.FrameMeta) {
	m, ok := bag.(map[string]any)
	if !ok {
		slog.Warn("dropping non-object record", "type", fmt.Sprintf("%T", bag))
		return
	}
	f.send(m)
}

func (f *Forwarder) OnError(source string, err error) {
	telemetry.TransportErrors.WithLabelValues(source).Inc()
	slog.Warn("transport error", "source", source, "error", err)
}

func (f *Forwarder) send(m map[string]any) {
	msg, err := structpb.NewStruct(m)
	if err != nil {
		slog.Warn("record not representable", "error", err)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stream.SendMsg(msg); err != nil {
		telemetry.TransportErrors.WithLabelValues("grpc_forward").Inc()
		slog.Warn("forward failed", "error", err)
	}
}

// Summary is the server's answer to a closed stream.
type Summary struct {
	Accepted int
	Rejected int
}

// Close half-closes the stream and waits for the summary.
func (f *Forwarder) Close() (Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stream.CloseSend(); err != nil {
		return Summary{}, err
	}
	reply := new(structpb.Struct)
	if err := f.stream.RecvMsg(reply); err != nil {
		return Summary{}, err
	}
	m := reply.AsMap()
	accepted, _ := m["accepted"].(float64)
	rejected, _ := m["rejected"].(float64)
	return Summary{Accepted: int(accepted), Rejected: int(rejected)}, nil
}
