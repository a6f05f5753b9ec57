package wire

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "eleva.v1.BookingService"

const (
	MethodCreateMeeting         = "/" + ServiceName + "/CreateMeeting"
	MethodGetMeeting            = "/" + ServiceName + "/GetMeeting"
	MethodCheckExistingTransfer = "/" + ServiceName + "/CheckExistingTransfer"
	MethodProcessDueTransfers   = "/" + ServiceName + "/ProcessDueTransfers"
)

type BookingServiceServer interface {
	CreateMeeting(context.Context, *CreateMeetingRequest) (*MeetingResponse, error)
	GetMeeting(context.Context, *GetMeetingRequest) (*MeetingResponse, error)
	CheckExistingTransfer(context.Context, *CheckExistingTransferRequest) (*CheckExistingTransferResponse, error)
	ProcessDueTransfers(context.Context, *ProcessDueTransfersRequest) (*ProcessDueTransfersResponse, error)
}

func unary[Req, Resp any](method string, call func(BookingServiceServer, context.Context, *Req) (Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(BookingServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		})
	}
}

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateMeeting", Handler: unary(MethodCreateMeeting, BookingServiceServer.CreateMeeting)},
		{MethodName: "GetMeeting", Handler: unary(MethodGetMeeting, BookingServiceServer.GetMeeting)},
		{MethodName: "CheckExistingTransfer", Handler: unary(MethodCheckExistingTransfer, BookingServiceServer.CheckExistingTransfer)},
		{MethodName: "ProcessDueTransfers", Handler: unary(MethodProcessDueTransfers, BookingServiceServer.ProcessDueTransfers)},
	},
	Metadata: "eleva/v1/booking.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}

// BookingServiceClient calls the service with the wire codec.
type BookingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingServiceClient(cc grpc.ClientConnInterface) *BookingServiceClient {
	return &BookingServiceClient{cc: cc}
}

func (c *BookingServiceClient) invoke(ctx context.Context, method string, in, out Message, opts []grpc.CallOption) error {
	return c.cc.Invoke(ctx, method, in, out, append(opts, grpc.ForceCodec(Codec{}))...)
}

func (c *BookingServiceClient) CreateMeeting(ctx context.Context, in *CreateMeetingRequest, opts ...grpc.CallOption) (*MeetingResponse, error) {
	out := new(MeetingResponse)
	if err := c.invoke(ctx, MethodCreateMeeting, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingServiceClient) GetMeeting(ctx context.Context, in *GetMeetingRequest, opts ...grpc.CallOption) (*MeetingResponse, error) {
	out := new(MeetingResponse)
	if err := c.invoke(ctx, MethodGetMeeting, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingServiceClient) CheckExistingTransfer(ctx context.Context, in *CheckExistingTransferRequest, opts ...grpc.CallOption) (*CheckExistingTransferResponse, error) {
	out := new(CheckExistingTransferResponse)
	if err := c.invoke(ctx, MethodCheckExistingTransfer, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingServiceClient) ProcessDueTransfers(ctx context.Context, in *ProcessDueTransfersRequest, opts ...grpc.CallOption) (*ProcessDueTransfersResponse, error) {
	out := new(ProcessDueTransfersResponse)
	if err := c.invoke(ctx, MethodProcessDueTransfers, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
