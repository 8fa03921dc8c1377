// Package api exposes engine outcomes over a streaming gRPC service and a
// small JSON status surface.
package api

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"tempo/internal/events"
)

// Server implements OutcomesServer on top of an events.Hub.
type Server struct {
	hub     *events.Hub
	gs      *grpc.Server
	bufSize int
	log     *slog.Logger
}

// NewServer creates a gRPC server streaming the outcomes published on hub.
func NewServer(hub *events.Hub, log *slog.Logger) *Server {
	s := &Server{
		hub:     hub,
		gs:      grpc.NewServer(),
		bufSize: 4096,
		log:     log,
	}
	RegisterOutcomesServer(s.gs, s)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc server listening", "addr", lis.Addr().String())
	return s.gs.Serve(lis)
}

// Stop ends every stream and stops the server gracefully.
func (s *Server) Stop() {
	s.hub.Close()
	s.gs.GracefulStop()
}

// Stream sends the latest outcome of every matching engine, then streams new
// outcomes as they are published. The stream ends when the client disconnects
// or the hub closes.
func (s *Server) Stream(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	// Subscribe before the snapshot so nothing published in between is lost.
	subID, ch := s.hub.Subscribe(s.bufSize)
	defer s.hub.Unsubscribe(subID)

	for _, o := range s.hub.Snapshot() {
		if !matches(req, o) {
			continue
		}
		msg, err := EncodeOutcome(o)
		if err != nil {
			return err
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
	}

	s.log.Info("grpc client subscribed", "subID", subID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("grpc client disconnected", "subID", subID)
			return nil
		case o, ok := <-ch:
			if !ok {
				return nil
			}
			if !matches(req, o) {
				continue
			}
			msg, err := EncodeOutcome(o)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}
