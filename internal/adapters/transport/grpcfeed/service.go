// Package grpcfeed ingests Remote ID records from remote agents over gRPC.
//
// The service has one client-streaming method, Report. Each message is a
// google.protobuf.Struct holding either a frame envelope
// {"address","rssi","frame":"<hex>"} or a structured record bag. The server
// answers with a summary Struct {"accepted","rejected"} when the agent closes
// the stream.
package grpcfeed

import (
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/pubsub"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

const (
	ServiceName = "ridwatch.v1.Ingest"
	reportPath  = "/" + ServiceName + "/Report"
)

// IngestServer is the server side of the Ingest service.
type IngestServer interface {
	Report(stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Report",
			Handler:       reportHandler,
			ClientStreams: true,
		},
	},
	Metadata: "ridwatch/ingest.proto",
}

func reportHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(IngestServer).Report(stream)
}

// RegisterIngestServer registers srv on s.
func RegisterIngestServer(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&serviceDesc, srv)
}

// ingestServer forwards every received message to a FrameSink.
type ingestServer struct {
	sink ports.FrameSink
}

func (s *ingestServer) Report(stream grpc.ServerStream) error {
	accepted, rejected := 0, 0
	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			summary, _ := structpb.NewStruct(map[string]any{
				"accepted": accepted,
				"rejected": rejected,
			})
			return stream.SendMsg(summary)
		}
		if err != nil {
			if status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}

		if err := pubsub.HandleBag(domain.TransportGRPC, msg.AsMap(), s.sink); err != nil {
			rejected++
			s.sink.OnError(string(domain.TransportGRPC), err)
			continue
		}
		accepted++
	}
}
