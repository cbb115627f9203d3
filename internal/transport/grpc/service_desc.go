package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "therapia.v1.AppointmentsService"

// AppointmentsServiceServer is the server API for therapia.v1.AppointmentsService.
// Every method takes and returns a google.protobuf.Struct.
type AppointmentsServiceServer interface {
	CreateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListUpcomingAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAppointmentsInRange(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv AppointmentsServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AppointmentsServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AppointmentsServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var AppointmentsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AppointmentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateAppointment", AppointmentsServiceServer.CreateAppointment),
		unaryHandler("GetAppointment", AppointmentsServiceServer.GetAppointment),
		unaryHandler("ListAppointments", AppointmentsServiceServer.ListAppointments),
		unaryHandler("ListUpcomingAppointments", AppointmentsServiceServer.ListUpcomingAppointments),
		unaryHandler("ListAppointmentsInRange", AppointmentsServiceServer.ListAppointmentsInRange),
		unaryHandler("UpdateAppointment", AppointmentsServiceServer.UpdateAppointment),
		unaryHandler("DeleteAppointment", AppointmentsServiceServer.DeleteAppointment),
		unaryHandler("CheckAvailability", AppointmentsServiceServer.CheckAvailability),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "therapia/v1/appointments.proto",
}

func RegisterAppointmentsServiceServer(s grpc.ServiceRegistrar, srv AppointmentsServiceServer) {
	s.RegisterService(&AppointmentsServiceDesc, srv)
}

// AppointmentsClient calls therapia.v1.AppointmentsService over an existing
// connection.
type AppointmentsClient struct {
	cc grpc.ClientConnInterface
}

func NewAppointmentsClient(cc grpc.ClientConnInterface) *AppointmentsClient {
	return &AppointmentsClient{cc: cc}
}

func (c *AppointmentsClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
