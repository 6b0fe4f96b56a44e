package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wpprelay.v1.Relay"

// Full method names.
const (
	MethodStatus            = "/" + ServiceName + "/Status"
	MethodListConversations = "/" + ServiceName + "/ListConversations"
	MethodListMessages      = "/" + ServiceName + "/ListMessages"
	MethodSendMessage       = "/" + ServiceName + "/SendMessage"
	MethodIngestPayload     = "/" + ServiceName + "/IngestPayload"
	MethodWatchConversation = "/" + ServiceName + "/WatchConversation"
)

// RelayServer is the control API. Requests and responses are protobuf
// well-known types so no generated code is needed.
type RelayServer interface {
	Status(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	ListConversations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	IngestPayload(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error)
	WatchConversation(in *wrapperspb.StringValue, stream grpc.ServerStream) error
}

// RelayServiceDesc describes RelayServer for grpc.Server.RegisterService.
var RelayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: unary(MethodStatus, newMsg[emptypb.Empty], RelayServer.Status)},
		{MethodName: "ListConversations", Handler: unary(MethodListConversations, newMsg[structpb.Struct], RelayServer.ListConversations)},
		{MethodName: "ListMessages", Handler: unary(MethodListMessages, newMsg[structpb.Struct], RelayServer.ListMessages)},
		{MethodName: "SendMessage", Handler: unary(MethodSendMessage, newMsg[structpb.Struct], RelayServer.SendMessage)},
		{MethodName: "IngestPayload", Handler: unary(MethodIngestPayload, newMsg[wrapperspb.BytesValue], RelayServer.IngestPayload)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchConversation", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "wpprelay/v1/relay.proto",
}

// RegisterRelayServer registers srv on s.
func RegisterRelayServer(s grpc.ServiceRegistrar, srv RelayServer) {
	s.RegisterService(&RelayServiceDesc, srv)
}

func newMsg[T any]() *T { return new(T) }

func unary[Req proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(RelayServer, context.Context, Req) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RelayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RelayServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RelayServer).WatchConversation(in, stream)
}
