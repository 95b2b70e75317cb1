package ewsv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "mirador.ews.v1.EarlyWarning"

	ComputeSignalsMethod      = "/" + ServiceName + "/ComputeSignals"
	GetResilienceIndexMethod  = "/" + ServiceName + "/GetResilienceIndex"
	GetSignalsMethod          = "/" + ServiceName + "/GetSignals"
	GetActiveAlertsMethod     = "/" + ServiceName + "/GetActiveAlerts"
	ResolveAlertMethod        = "/" + ServiceName + "/ResolveAlert"
	StatusMethod              = "/" + ServiceName + "/Status"
	StreamNotificationsMethod = "/" + ServiceName + "/StreamNotifications"
)

// EarlyWarningServer is the server API for the EarlyWarning service.
type EarlyWarningServer interface {
	ComputeSignals(context.Context, *ComputeSignalsRequest) (*ComputeSignalsResponse, error)
	GetResilienceIndex(context.Context, *GetResilienceIndexRequest) (*GetResilienceIndexResponse, error)
	GetSignals(context.Context, *GetSignalsRequest) (*GetSignalsResponse, error)
	GetActiveAlerts(context.Context, *GetActiveAlertsRequest) (*GetActiveAlertsResponse, error)
	ResolveAlert(context.Context, *ResolveAlertRequest) (*ResolveAlertResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	StreamNotifications(*StreamNotificationsRequest, grpc.ServerStreamingServer[Notification]) error
	mustEmbedUnimplementedEarlyWarningServer()
}

// UnimplementedEarlyWarningServer must be embedded by implementations.
type UnimplementedEarlyWarningServer struct{}

func (UnimplementedEarlyWarningServer) ComputeSignals(context.Context, *ComputeSignalsRequest) (*ComputeSignalsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ComputeSignals not implemented")
}
func (UnimplementedEarlyWarningServer) GetResilienceIndex(context.Context, *GetResilienceIndexRequest) (*GetResilienceIndexResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetResilienceIndex not implemented")
}
func (UnimplementedEarlyWarningServer) GetSignals(context.Context, *GetSignalsRequest) (*GetSignalsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSignals not implemented")
}
func (UnimplementedEarlyWarningServer) GetActiveAlerts(context.Context, *GetActiveAlertsRequest) (*GetActiveAlertsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetActiveAlerts not implemented")
}
func (UnimplementedEarlyWarningServer) ResolveAlert(context.Context, *ResolveAlertRequest) (*ResolveAlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ResolveAlert not implemented")
}
func (UnimplementedEarlyWarningServer) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}
func (UnimplementedEarlyWarningServer) StreamNotifications(*StreamNotificationsRequest, grpc.ServerStreamingServer[Notification]) error {
	return status.Error(codes.Unimplemented, "method StreamNotifications not implemented")
}
func (UnimplementedEarlyWarningServer) mustEmbedUnimplementedEarlyWarningServer() {}

// RegisterEarlyWarningServer attaches srv to the registrar.
func RegisterEarlyWarningServer(s grpc.ServiceRegistrar, srv EarlyWarningServer) {
	s.RegisterService(&EarlyWarningServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(EarlyWarningServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EarlyWarningServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EarlyWarningServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamNotificationsHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamNotificationsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EarlyWarningServer).StreamNotifications(in, &grpc.GenericServerStream[StreamNotificationsRequest, Notification]{ServerStream: stream})
}

// EarlyWarningServiceDesc is the grpc.ServiceDesc for the EarlyWarning service.
var EarlyWarningServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EarlyWarningServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ComputeSignals", Handler: unaryHandler(ComputeSignalsMethod, EarlyWarningServer.ComputeSignals)},
		{MethodName: "GetResilienceIndex", Handler: unaryHandler(GetResilienceIndexMethod, EarlyWarningServer.GetResilienceIndex)},
		{MethodName: "GetSignals", Handler: unaryHandler(GetSignalsMethod, EarlyWarningServer.GetSignals)},
		{MethodName: "GetActiveAlerts", Handler: unaryHandler(GetActiveAlertsMethod, EarlyWarningServer.GetActiveAlerts)},
		{MethodName: "ResolveAlert", Handler: unaryHandler(ResolveAlertMethod, EarlyWarningServer.ResolveAlert)},
		{MethodName: "Status", Handler: unaryHandler(StatusMethod, EarlyWarningServer.Status)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamNotifications",
			Handler:       streamNotificationsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "mirador/ews/v1/ews.proto",
}

// EarlyWarningClient is the client API for the EarlyWarning service.
type EarlyWarningClient interface {
	ComputeSignals(ctx context.Context, in *ComputeSignalsRequest, opts ...grpc.CallOption) (*ComputeSignalsResponse, error)
	GetResilienceIndex(ctx context.Context, in *GetResilienceIndexRequest, opts ...grpc.CallOption) (*GetResilienceIndexResponse, error)
	GetSignals(ctx context.Context, in *GetSignalsRequest, opts ...grpc.CallOption) (*GetSignalsResponse, error)
	GetActiveAlerts(ctx context.Context, in *GetActiveAlertsRequest, opts ...grpc.CallOption) (*GetActiveAlertsResponse, error)
	ResolveAlert(ctx context.Context, in *ResolveAlertRequest, opts ...grpc.CallOption) (*ResolveAlertResponse, error)
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	StreamNotifications(ctx context.Context, in *StreamNotificationsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Notification], error)
}

type earlyWarningClient struct {
	cc grpc.ClientConnInterface
}

// NewEarlyWarningClient returns a client that always negotiates the JSON codec.
func NewEarlyWarningClient(cc grpc.ClientConnInterface) EarlyWarningClient {
	return &earlyWarningClient{cc: cc}
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *earlyWarningClient) ComputeSignals(ctx context.Context, in *ComputeSignalsRequest, opts ...grpc.CallOption) (*ComputeSignalsResponse, error) {
	return invoke[ComputeSignalsResponse](ctx, c.cc, ComputeSignalsMethod, in, opts)
}

func (c *earlyWarningClient) GetResilienceIndex(ctx context.Context, in *GetResilienceIndexRequest, opts ...grpc.CallOption) (*GetResilienceIndexResponse, error) {
	return invoke[GetResilienceIndexResponse](ctx, c.cc, GetResilienceIndexMethod, in, opts)
}

func (c *earlyWarningClient) GetSignals(ctx context.Context, in *GetSignalsRequest, opts ...grpc.CallOption) (*GetSignalsResponse, error) {
	return invoke[GetSignalsResponse](ctx, c.cc, GetSignalsMethod, in, opts)
}

func (c *earlyWarningClient) GetActiveAlerts(ctx context.Context, in *GetActiveAlertsRequest, opts ...grpc.CallOption) (*GetActiveAlertsResponse, error) {
	return invoke[GetActiveAlertsResponse](ctx, c.cc, GetActiveAlertsMethod, in, opts)
}

func (c *earlyWarningClient) ResolveAlert(ctx context.Context, in *ResolveAlertRequest, opts ...grpc.CallOption) (*ResolveAlertResponse, error) {
	return invoke[ResolveAlertResponse](ctx, c.cc, ResolveAlertMethod, in, opts)
}

func (c *earlyWarningClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, StatusMethod, in, opts)
}

func (c *earlyWarningClient) StreamNotifications(ctx context.Context, in *StreamNotificationsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Notification], error) {
	stream, err := c.cc.NewStream(ctx, &EarlyWarningServiceDesc.Streams[0], StreamNotificationsMethod, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[StreamNotificationsRequest, Notification]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
