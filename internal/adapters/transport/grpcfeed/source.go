package grpcfeed

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":9000"

// Options configures a Source.
type Options struct {
	Addr string
	// Listener overrides net.Listen on Addr.
	Listener net.Listener
	// ServerOptions are passed to grpc.NewServer.
	ServerOptions []grpc.ServerOption
}

// Source serves the Ingest service and forwards agent reports into the pipeline.
type Source struct {
	opts Options

	mu     sync.Mutex
	server *grpc.Server
}

var _ ports.Transport = (*Source)(nil)

// NewSource creates a gRPC ingest transport.
func NewSource(opts Options) *Source {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	return &Source{opts: opts}
}

func (s *Source) Name() string { return string(domain.TransportGRPC) }

// Start serves until ctx is done or Close is called.
func (s *Source) Start(ctx context.Context, sink ports.FrameSink) error {
	lis := s.opts.Listener
	if lis == nil {
		var err error
		if lis, err = net.Listen("tcp", s.opts.Addr); err != nil {
			return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
		}
	}

	server := grpc.NewServer(s.opts.ServerOptions...)
	RegisterIngestServer(server, &ingestServer{sink: sink})
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	slog.Info("grpc ingest listening", "addr", lis.Addr().String())
	if err := server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Close stops the server immediately.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		s.server.Stop()
	}
	return nil
}
