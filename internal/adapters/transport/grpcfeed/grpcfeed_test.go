package grpcfeed

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/decoder"
)

type recordingSink struct {
	mu         sync.Mutex
	frames     [][]byte
	metas      []domain.FrameMeta
	structured []any
	errs       []error
}

func (r *recordingSink) OnRawFrame(frame []byte, meta domain.FrameMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	r.metas = append(r.metas, meta)
}

func (r *recordingSink) OnStructuredRecord(bag any, _ domain.FrameMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.structured = append(r.structured, bag)
}

func (r *recordingSink) OnError(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func startSource(t *testing.T, sink *recordingSink) (*grpc.ClientConn, context.CancelFunc, chan error) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	src := NewSource(Options{Listener: lis})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Start(ctx, sink) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, cancel, done
}

func TestForwarderToSource(t *testing.T) {
	sink := &recordingSink{}
	conn, cancel, done := startSource(t, sink)
	defer cancel()

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	fwd, err := NewForwarder(ctx, conn)
	require.NoError(t, err)

	frame := decoder.EncodeBasicID(1, 2, "SERIAL123456")
	fwd.OnRawFrame(frame, domain.FrameMeta{Address: "AA:BB:CC:DD:EE:01", RSSI: -62})
	fwd.OnStructuredRecord(map[string]any{
		"mac":      "AA:BB:CC:DD:EE:02",
		"Basic ID": map[string]any{"ID": "SERIAL777777"},
	}, domain.FrameMeta{})
	fwd.OnStructuredRecord([]any{"not", "an", "object"}, domain.FrameMeta{})
	fwd.send(map[string]any{"frame": "zz"})

	summary, err := fwd.Close()
	require.NoError(t, err)
	assert.Equal(t, Summary{Accepted: 2, Rejected: 1}, summary)

	sink.mu.Lock()
	require.Len(t, sink.frames, 1)
	assert.Equal(t, frame, sink.frames[0])
	assert.Equal(t, domain.FrameMeta{Address: "AA:BB:CC:DD:EE:01", RSSI: -62, Transport: domain.TransportGRPC}, sink.metas[0])
	assert.Len(t, sink.structured, 1)
	assert.Len(t, sink.errs, 1)
	sink.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestSourceListenError(t *testing.T) {
	src := NewSource(Options{Addr: "256.0.0.1:bad"})
	assert.Error(t, src.Start(context.Background(), &recordingSink{}))
	assert.NoError(t, src.Close())
	assert.Equal(t, "grpc", src.Name())
}
