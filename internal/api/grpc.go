package api

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// StreamMethod is the full method name of the outcome stream.
const StreamMethod = "/tempo.v1.Outcomes/Stream"

// OutcomesServer streams tick outcomes. The request carries optional
// "strategy" and "symbol" string fields; each response is one outcome encoded
// by EncodeOutcome.
type OutcomesServer interface {
	Stream(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// OutcomesServiceDesc describes the service without generated stubs. The
// well-known Struct type travels over the default proto codec.
var OutcomesServiceDesc = grpc.ServiceDesc{
	ServiceName: "tempo.v1.Outcomes",
	HandlerType: (*OutcomesServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       streamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "tempo/v1/outcomes.proto",
}

// RegisterOutcomesServer registers srv on gs.
func RegisterOutcomesServer(gs grpc.ServiceRegistrar, srv OutcomesServer) {
	gs.RegisterService(&OutcomesServiceDesc, srv)
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(OutcomesServer).Stream(req, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}
