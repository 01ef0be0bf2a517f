package grpcx

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "huddle.v1.HuddleService"

// Сообщения — google.protobuf.Struct, поэтому описание сервиса написано руками
// и не требует сгенерированного кода.
type HuddleServiceServer interface {
	StartOrJoin(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetActiveHuddle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMyActiveHuddle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IncomingHuddles(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Join(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Leave(context.Context, *structpb.Struct) (*structpb.Struct, error)
	End(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListParticipants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendSignal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReceiveSignals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PurgeSignals(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type method func(HuddleServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call method) grpc.MethodDesc {
	full := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(HuddleServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(HuddleServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HuddleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("StartOrJoin", HuddleServiceServer.StartOrJoin),
		unary("GetActiveHuddle", HuddleServiceServer.GetActiveHuddle),
		unary("GetMyActiveHuddle", HuddleServiceServer.GetMyActiveHuddle),
		unary("IncomingHuddles", HuddleServiceServer.IncomingHuddles),
		unary("Join", HuddleServiceServer.Join),
		unary("Leave", HuddleServiceServer.Leave),
		unary("End", HuddleServiceServer.End),
		unary("ListParticipants", HuddleServiceServer.ListParticipants),
		unary("SendSignal", HuddleServiceServer.SendSignal),
		unary("ReceiveSignals", HuddleServiceServer.ReceiveSignals),
		unary("PurgeSignals", HuddleServiceServer.PurgeSignals),
	},
	Metadata: "huddle/v1/huddle.proto",
}

// FullMethod returns the invoke path of a HuddleService method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func Register(s grpc.ServiceRegistrar, srv HuddleServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
